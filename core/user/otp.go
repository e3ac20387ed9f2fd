package user

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/mail"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
)

const (
	otpField       = "otp"
	otpKeyPrefix   = "signup:"
	otpGracePeriod = time.Hour // expired registrations are kept this long to report "expired"

	MsgOTPNotFound        = "No OTP found for this email. Please request a new one."
	MsgOTPExpired         = "OTP has expired. Please request a new one."
	MsgOTPTooManyAttempts = "Too many incorrect attempts. Please request a new OTP."
	msgOTPIncorrect       = "Incorrect OTP. %d attempts remaining."
)

var generateOTP = randomDigits // mockable

// pendingSignup is a registration waiting for its email to be verified.
type pendingSignup struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Branch       string    `json:"branch"`
	Semester     int       `json:"semester"`
	PasswordHash []byte    `json:"password_hash"`
	Code         string    `json:"code"`
	ExpiresAt    time.Time `json:"expires_at"`
	Attempts     int       `json:"attempts"`
}

// OTPMailData is the template data of the verification email.
type OTPMailData struct {
	Name             string
	Code             string
	ExpiresInMinutes int
}

// keyedMutex serialises the callers holding the same key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

// lock blocks until key is free and returns the func releasing it.
func (km *keyedMutex) lock(key string) (unlock func()) {
	km.mu.Lock()
	if km.locks == nil {
		km.locks = make(map[string]*keyedLock)
	}
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		km.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

func randomDigits(n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + d.Int64())
	}
	return string(buf), nil
}

func otpKey(email string) string {
	return otpKeyPrefix + core.CleanString(email, true /* lower */)
}

func otpError(msg string) error {
	return core.NewFieldValidationError(otpField, msg)
}

func (svc *Service) loadPending(ctx context.Context, email string) (pendingSignup, error) {
	var p pendingSignup
	data, err := svc.store.Get(ctx, otpKey(email))
	if err != nil {
		if errors.Cause(err) == core.ErrKeyNotFound {
			return p, otpError(MsgOTPNotFound)
		}
		return p, errors.Wrap(err, "getting pending signup")
	}
	if err = json.Unmarshal(data, &p); err != nil {
		return p, errors.Wrap(err, "decoding pending signup")
	}
	return p, nil
}

func (svc *Service) savePending(ctx context.Context, p pendingSignup) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encoding pending signup")
	}
	ttl := time.Until(p.ExpiresAt) + otpGracePeriod
	return errors.Wrap(svc.store.Set(ctx, otpKey(p.Email), data, ttl), "storing pending signup")
}

// issueOTP sets a fresh code on p, stores it and emails it.
func (svc *Service) issueOTP(ctx context.Context, p pendingSignup) error {
	code, err := generateOTP(svc.conf.OTP.Length)
	if err != nil {
		return errors.Wrap(err, "generating otp")
	}
	p.Code = code
	p.Attempts = 0
	p.ExpiresAt = svc.now().Add(svc.conf.OTP.TTL)
	if err = svc.savePending(ctx, p); err != nil {
		return err
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: p.Name, Address: p.Email}},
		Subject:      "Verify your email",
		TemplateName: core.TemplateOTPVerification,
		TemplateData: OTPMailData{
			Name:             p.Name,
			Code:             code,
			ExpiresInMinutes: int(svc.conf.OTP.TTL / time.Minute),
		},
	})
	return nil
}

// Signup stores a pending registration and emails a one-time code to verify the address.
// nu must have been validated.
func (svc *Service) Signup(ctx context.Context, nu NewUser) error {
	if nu.Role == RoleAdmin {
		return core.NewFieldValidationError("role", "admins cannot sign up")
	}
	var usr User
	if err := usr.SetPassword(nu.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	defer svc.otpLocks.lock(otpKey(nu.Email))()
	return svc.issueOTP(ctx, pendingSignup{
		Name:         nu.Name,
		Email:        nu.Email,
		Role:         nu.Role,
		Branch:       nu.Branch,
		Semester:     nu.Semester,
		PasswordHash: usr.PasswordHash,
	})
}

// ResendOTP issues a new code for a pending registration.
func (svc *Service) ResendOTP(ctx context.Context, email string) error {
	defer svc.otpLocks.lock(otpKey(email))()
	p, err := svc.loadPending(ctx, email)
	if err != nil {
		return err
	}
	return svc.issueOTP(ctx, p)
}

// VerifySignup checks code against the pending registration of email and creates the User.
// Verifications of the same email run one at a time so every wrong code is counted.
func (svc *Service) VerifySignup(ctx context.Context, email, code string) (User, error) {
	key := otpKey(email)
	defer svc.otpLocks.lock(key)()

	p, err := svc.loadPending(ctx, email)
	if err != nil {
		return User{}, err
	}

	if svc.now().After(p.ExpiresAt) {
		_ = svc.store.Delete(ctx, key)
		return User{}, otpError(MsgOTPExpired)
	}
	if p.Attempts >= svc.conf.OTP.MaxAttempts {
		_ = svc.store.Delete(ctx, key)
		return User{}, otpError(MsgOTPTooManyAttempts)
	}
	if core.CleanString(code) != p.Code {
		p.Attempts++
		if err = svc.savePending(ctx, p); err != nil {
			return User{}, err
		}
		return User{}, otpError(fmt.Sprintf(msgOTPIncorrect, svc.conf.OTP.MaxAttempts-p.Attempts))
	}

	// the address may have been taken while the code was pending
	if err = svc.checkUniqueness(ctx, p.Email); err != nil {
		return User{}, err
	}

	now := svc.now().UTC()
	usr := User{
		Name:          p.Name,
		Email:         p.Email,
		Role:          p.Role,
		IsActive:      true,
		EmailVerified: true,
		PasswordHash:  p.PasswordHash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	usr, err = svc.createWithProfile(ctx, usr, p.Branch, p.Semester)
	if err != nil {
		return User{}, err
	}
	if err = svc.store.Delete(ctx, key); err != nil {
		return User{}, errors.Wrap(err, "deleting pending signup")
	}
	return usr, nil
}
