package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/learnwise/backend/core"
)

var (
	// errors
	ErrNotFound                 = errors.New("user not found")
	ErrEmailExists              = errors.New("a user with this email already exists")
	ErrProfileNotFound          = errors.New("student profile not found")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrInvalidParentCredentials = errors.New("invalid student ID or PIN")
	ErrWrongPassword            = errors.New("current password is incorrect")
	ErrNotStudent               = errors.New("only students have a learning profile")
)

type Repository interface {
	CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []User, exec ...core.DBExecutor) error
	CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	// QueryUsers applies AND operation on available QueryFilter fields.
	// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
	QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
	GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
	UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error

	CreateProfile(ctx context.Context, profile StudentProfile, exec ...core.DBExecutor) (StudentProfile, error)
	GetProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (StudentProfile, error)
	UpdateProfile(ctx context.Context, profile StudentProfile, exec ...core.DBExecutor) (StudentProfile, error)
	// AddQuizResult folds scorePct into the running average of the profile of userID in a single statement.
	AddQuizResult(ctx context.Context, userID string, scorePct float64, at time.Time, exec ...core.DBExecutor) error
	AddLessonCompleted(ctx context.Context, userID string, at time.Time, exec ...core.DBExecutor) error
}

type Service struct {
	db      core.DB
	repo    Repository
	mailSvc core.EmailService
	store   core.KVStore
	conf    *core.Config
	tokens  *tokenGenerator
	now     func() time.Time // mockable

	otpLocks keyedMutex // per pending registration
}

func NewService(db core.DB, repo Repository, mailSvc core.EmailService, store core.KVStore, conf *core.Config) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		mailSvc: mailSvc,
		store:   store,
		conf:    conf,
		tokens:  newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		now:     time.Now,
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// CheckEmailAvailable reports whether no account uses email yet.
func (svc *Service) CheckEmailAvailable(ctx context.Context, email string) (bool, error) {
	err := svc.repo.CheckEmailUniqueness(ctx, core.CleanString(email, true /* lower */), nil)
	switch err {
	case nil:
		return true, nil
	case ErrEmailExists:
		return false, nil
	default:
		return false, errors.Wrap(err, "checking email uniqueness")
	}
}

// createWithProfile creates usr, plus a StudentProfile for students, in one transaction.
func (svc *Service) createWithProfile(ctx context.Context, usr User, branch string, semester int) (User, error) {
	tx, err := svc.db.BeginTxx(ctx, nil)
	if err != nil {
		return User{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	usr, err = svc.repo.CreateUser(ctx, usr, tx)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	if usr.IsStudent() {
		profile, err := svc.repo.CreateProfile(ctx, StudentProfile{
			UserID:    usr.ID,
			Branch:    branch,
			Semester:  semester,
			CreatedAt: usr.CreatedAt,
			UpdatedAt: usr.UpdatedAt,
		}, tx)
		if err != nil {
			return User{}, errors.Wrap(err, "creating student profile")
		}
		usr.Profile = &profile
	}
	if err = tx.Commit(); err != nil {
		return User{}, errors.Wrap(err, "committing transaction")
	}
	return usr, nil
}

// Create creates a verified, active User. nu must have been validated.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := svc.now().UTC()
	usr := User{
		Name:          nu.Name,
		Email:         nu.Email,
		Role:          nu.Role,
		IsActive:      true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.createWithProfile(ctx, usr, nu.Branch, nu.Semester)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// Authenticate returns the active User matching email and pwd.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(svc.now().UTC())
	return svc.repo.UpdateUser(ctx, usr)
}

// Update applies uu to usr. uu must have been validated.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Email = uu.Email
	usr.Role = uu.Role
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	usr.UpdatedAt = svc.now().UTC()

	updated, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	if updated.IsStudent() && updated.Profile == nil {
		// promoted to student: make sure the profile exists
		profile, err := svc.repo.CreateProfile(ctx, StudentProfile{
			UserID: updated.ID, CreatedAt: updated.UpdatedAt, UpdatedAt: updated.UpdatedAt,
		})
		if err != nil {
			return User{}, errors.Wrap(err, "creating student profile")
		}
		updated.Profile = &profile
	}
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids)
}

// ChangePassword sets a new password after checking the current one. data must have been validated.
func (svc *Service) ChangePassword(ctx context.Context, usr User, data ChangePassword) (User, error) {
	if err := usr.CheckPassword(data.CurrentPassword); err != nil {
		return User{}, core.NewValidationError(ErrWrongPassword, core.FieldError{Field: "current_password", Error: ErrWrongPassword.Error()})
	}
	if err := usr.SetPassword(data.Password); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = svc.now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// UpdateProfile updates the account name and, for students, their profile. data must have been validated.
func (svc *Service) UpdateProfile(ctx context.Context, usr User, data UpdateProfile) (User, error) {
	now := svc.now().UTC()
	if data.Name != "" && data.Name != usr.Name {
		usr.Name = data.Name
		usr.UpdatedAt = now
		var err error
		if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
			return User{}, errors.Wrap(err, "updating user")
		}
	}
	if !usr.IsStudent() {
		return usr, nil
	}

	profile, err := svc.repo.GetProfile(ctx, usr.ID)
	if err != nil {
		return User{}, errors.Wrap(err, "getting student profile")
	}
	if data.Branch != nil {
		profile.Branch = *data.Branch
	}
	if data.Semester != nil {
		profile.Semester = *data.Semester
	}
	if data.BaselineScore != nil {
		profile.BaselineScore = *data.BaselineScore
	}
	profile.UpdatedAt = now
	if profile, err = svc.repo.UpdateProfile(ctx, profile); err != nil {
		return User{}, errors.Wrap(err, "updating student profile")
	}
	usr.Profile = &profile
	return usr, nil
}

func (svc *Service) GetProfile(ctx context.Context, userID string) (StudentProfile, error) {
	return svc.repo.GetProfile(ctx, userID)
}

// RecordQuizResult folds one quiz result (0-100) into the student's running average.
// exec lets the caller record the result in its own transaction.
func (svc *Service) RecordQuizResult(ctx context.Context, userID string, scorePct float64, exec ...core.DBExecutor) error {
	err := svc.repo.AddQuizResult(ctx, userID, core.Clamp(scorePct, 0, 100), svc.now().UTC(), exec...)
	return ignoreMissingProfile(err, "recording quiz result")
}

// RecordLessonCompleted increments the completed lessons counter of a student.
func (svc *Service) RecordLessonCompleted(ctx context.Context, userID string, exec ...core.DBExecutor) error {
	err := svc.repo.AddLessonCompleted(ctx, userID, svc.now().UTC(), exec...)
	return ignoreMissingProfile(err, "recording lesson completion")
}

func ignoreMissingProfile(err error, msg string) error {
	if err == ErrProfileNotFound {
		return nil // teachers and admins have no stats
	}
	return errors.Wrap(err, msg)
}

// SetParentPIN sets the PIN a parent uses to view the student's progress. pin must have been validated.
func (svc *Service) SetParentPIN(ctx context.Context, usr User, pin string) error {
	if !usr.IsStudent() {
		return ErrNotStudent
	}
	profile, err := svc.repo.GetProfile(ctx, usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting student profile")
	}
	if err = profile.SetParentPIN(pin); err != nil {
		return errors.Wrap(err, "hashing parent pin")
	}
	profile.UpdatedAt = svc.now().UTC()
	_, err = svc.repo.UpdateProfile(ctx, profile)
	return errors.Wrap(err, "updating student profile")
}

// CheckParentPIN returns the active student identified by studentID if pin matches their parent PIN.
func (svc *Service) CheckParentPIN(ctx context.Context, studentID, pin string) (User, error) {
	usr, err := svc.GetByID(ctx, studentID)
	if err != nil {
		if err == ErrNotFound {
			return User{}, ErrInvalidParentCredentials
		}
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsStudent() || !usr.IsActive || usr.Profile == nil || !usr.Profile.CheckParentPIN(pin) {
		return User{}, ErrInvalidParentCredentials
	}
	return usr, nil
}

// PasswordResetMailData is the template data of the password reset email.
type PasswordResetMailData struct {
	Email string
	UID   string
	Token string
}

// RequestPasswordReset emails a password reset link to the active user owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	token, err := svc.tokens.makeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making password reset token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: core.TemplatePasswordReset,
		TemplateData: PasswordResetMailData{Email: usr.Email, UID: EncodeUID(usr), Token: token},
	})
	return nil
}

// ResetPassword sets a new password if the reset token is valid. data must have been validated.
func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) (User, error) {
	invalid := core.NewValidationError(errInvalidToken, core.FieldError{Field: "token", Error: errInvalidToken.Error()})

	id, err := decodeUID(data.UID)
	if err != nil {
		return User{}, invalid
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return User{}, invalid
		}
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokens.verifyToken(usr, data.Token); err != nil {
		if err == errTokenExpired {
			return User{}, core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
		}
		return User{}, invalid
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = svc.now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}
