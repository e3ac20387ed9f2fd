package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/user"
)

type authedFunc func(roles ...user.Role) []echo.MiddlewareFunc

type accountApi struct {
	conf     *core.Config
	logger   core.Logger
	svc      *user.Service
	validate *validator.Validate
}

func registerAccountAPI(g *echo.Group, authed authedFunc, limited func() []echo.MiddlewareFunc, deps ServerDeps) {
	api := accountApi{
		conf:     deps.Conf,
		logger:   deps.Logger,
		svc:      deps.UserSvc,
		validate: deps.Validate,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.GET("/check-email", api.checkEmail)
	ag.POST("/signup", api.signup, limited()...)
	ag.POST("/verify-otp", api.verifyOTP, limited()...)
	ag.POST("/resend-otp", api.resendOTP, limited()...)
	ag.POST("/login", api.login, limited()...)
	ag.POST("/password-reset", api.resetPassword, limited()...)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset, limited()...)

	// authed endpoints
	ag.POST("/refresh", api.refreshToken, authed()...)
	ag.GET("/me", api.me, authed()...)
	ag.PUT("/profile", api.updateProfile, authed()...)
	ag.POST("/change-password", api.changePassword, authed()...)
}

// Handlers

func (api *accountApi) checkEmail(ctx echo.Context) error {
	var data EmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	available, err := api.svc.CheckEmailAvailable(ctx.Request().Context(), data.Email)
	if err != nil {
		return errors.Wrap(err, "checking email availability")
	}
	msg := "Email is available"
	if !available {
		msg = "Email is already registered"
	}
	return respond(ctx, http.StatusOK, msg, EmailAvailability{Email: data.Email, Available: available})
}

func (api *accountApi) signup(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	reqCtx := ctx.Request().Context()
	if err := data.Validate(reqCtx, api.validate, api.svc); err != nil {
		return err
	}

	if err := api.svc.Signup(reqCtx, data); err != nil {
		return errors.Wrap(err, "signing up")
	}
	return respond(ctx, http.StatusOK, "OTP sent to your email. Please verify to complete registration.", OTPSent{
		Email:            data.Email,
		ExpiresInMinutes: int(api.conf.OTP.TTL.Minutes()),
	})
}

func (api *accountApi) verifyOTP(ctx echo.Context) error {
	var data VerifyOTPRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyOTPRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.VerifySignup(ctx.Request().Context(), data.Email, data.OTP)
	if err != nil {
		return errors.Wrap(err, "verifying signup")
	}
	token, err := GenerateToken(api.conf, GetUserClaims(api.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return respond(ctx, http.StatusCreated, "Email verified. Registration complete.", AuthResponse{Token: token, User: usr})
}

func (api *accountApi) resendOTP(ctx echo.Context) error {
	var data EmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResendOTP(ctx.Request().Context(), data.Email); err != nil {
		return errors.Wrap(err, "resending otp")
	}
	return respond(ctx, http.StatusOK, "A new OTP has been sent to your email.", nil)
}

func (api *accountApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.svc.Authenticate(reqCtx, data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	if !usr.IsActive {
		return errAccountDeactivated
	}
	if usr, err = api.svc.SetLastLogin(reqCtx, usr); err != nil {
		return errors.Wrap(err, "setting lastLogin")
	}

	token, err := GenerateToken(api.conf, GetUserClaims(api.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return respond(ctx, http.StatusOK, "Login successful", AuthResponse{Token: token, User: usr})
}

func (api *accountApi) resetPassword(ctx echo.Context) error {
	var data EmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error(fmt.Sprintf("requesting password reset: %v", err), errors.Wrap(err, "requesting password reset"))
	}
	return respond(ctx, http.StatusOK,
		"If the email address supplied is associated with an active account on this system, "+
			"an email will arrive in your inbox shortly with instructions to reset your password.", nil)
}

func (api *accountApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if _, err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return respond(ctx, http.StatusOK, "Password has been reset with the new password.", nil)
}

func (api *accountApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return respond(ctx, http.StatusOK, "", TokenResponse{Token: token})
}

func (api *accountApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return respond(ctx, http.StatusOK, "", usr)
}

func (api *accountApi) updateProfile(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.UpdateProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if usr, err = api.svc.UpdateProfile(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return respond(ctx, http.StatusOK, "Profile updated", usr)
}

func (api *accountApi) changePassword(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.ChangePassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err = data.Validate(usr, api.validate); err != nil {
		return err
	}

	if _, err = api.svc.ChangePassword(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return respond(ctx, http.StatusOK, "Password changed", nil)
}

type (
	EmailRequest struct {
		Email string `json:"email" query:"email" validate:"required,email"`
	}

	EmailAvailability struct {
		Email     string `json:"email"`
		Available bool   `json:"available"`
	}

	OTPSent struct {
		Email            string `json:"email"`
		ExpiresInMinutes int    `json:"expires_in_minutes"`
	}

	VerifyOTPRequest struct {
		Email string `json:"email" validate:"required,email"`
		OTP   string `json:"otp" validate:"required,numeric"`
	}

	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	AuthResponse struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}
)

func (er *EmailRequest) Validate(validate *validator.Validate) error {
	er.Email = core.CleanString(er.Email, true /* lower */)
	return validate.Struct(er)
}

func (vr *VerifyOTPRequest) Validate(validate *validator.Validate) error {
	vr.Email = core.CleanString(vr.Email, true /* lower */)
	vr.OTP = core.CleanString(vr.OTP)
	return validate.Struct(vr)
}

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}
