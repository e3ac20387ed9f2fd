package user

import "time"

func SetNow(svc *Service, now func() time.Time) { svc.now = now }

// SetOTPGenerator replaces the OTP generator and returns a func restoring it.
func SetOTPGenerator(gen func(n int) (string, error)) (restore func()) {
	orig := generateOTP
	generateOTP = gen
	return func() { generateOTP = orig }
}
