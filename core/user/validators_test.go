package user

import (
	"log"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/learnwise/backend/core"
)

type stdLogger struct{ *log.Logger }

func (l stdLogger) Debug(msg string, _ ...interface{}) { l.Println(msg) }
func (l stdLogger) Info(msg string, _ ...interface{})  { l.Println(msg) }
func (l stdLogger) Warn(msg string, _ ...interface{})  { l.Println(msg) }
func (l stdLogger) Error(msg string, _ ...interface{}) { l.Println(msg) }
func (l stdLogger) Fatal(msg string, _ ...interface{}) { l.Fatalln(msg) }

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	LoadCommonPasswords(stdLogger{log.New(os.Stderr, "TEST : ", 0)})
	return validate
}

func TestValidatePassword(t *testing.T) {
	validate := newValidator()

	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{"too short", "Ab1!", pwdMinLenTag},
		{"whitespace", "Abcd 1234!", pwdNoSpaceTag},
		{"all numeric", "1234567890", pwdNotAllNumTag},
		{"no special", "Abcdefg123", pwdComplexityTag},
		{"no upper", "abcdefg123!", pwdComplexityTag},
		{"similar to email", "Ada@test.io1", pwdAttrSimTag},
		{"common", "P@ssw0rd1", pwdNoCommonTag},
		{"ok", "Sup3r-S3cret!", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nu := NewUser{
				Name:            "Ada Lovelace",
				Email:           "ada@test.io",
				Password:        tc.pwd,
				PasswordConfirm: tc.pwd,
				Role:            RoleStudent,
			}
			err := validate.Struct(nu)
			if tc.wantTag == "" {
				if err != nil {
					t.Fatalf("validate.Struct() = %v; want nil", err)
				}
				return
			}
			verrs, ok := err.(validator.ValidationErrors)
			if !ok || len(verrs) != 1 {
				t.Fatalf("validate.Struct() = %v; want one %q error", err, tc.wantTag)
			}
			if verrs[0].Tag() != tc.wantTag {
				t.Errorf("tag = %q; want %q", verrs[0].Tag(), tc.wantTag)
			}
		})
	}
}

func TestNewUser_Validate_Role(t *testing.T) {
	validate := newValidator()

	nu := NewUser{Name: "x", Email: "x@test.io", Password: "Sup3r-S3cret!", PasswordConfirm: "Sup3r-S3cret!", Role: "parent"}
	err := validate.Struct(nu)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) != 1 || verrs[0].Tag() != roleTag {
		t.Fatalf("validate.Struct() = %v; want a %q error", err, roleTag)
	}
}

func TestSetParentPIN_Validate(t *testing.T) {
	validate := newValidator()

	tests := []struct {
		pin   string
		valid bool
	}{
		{"123456", true},
		{" 123456 ", true},
		{"12345", false},
		{"12345a", false},
		{"", false},
	}
	for _, tc := range tests {
		sp := SetParentPIN{PIN: tc.pin}
		if err := sp.Validate(validate); (err == nil) != tc.valid {
			t.Errorf("SetParentPIN{%q}.Validate() = %v; want valid %v", tc.pin, err, tc.valid)
		}
	}
}

func TestRandomDigits(t *testing.T) {
	code, err := randomDigits(6)
	if err != nil {
		t.Fatalf("randomDigits() failed: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("len(code) = %d; want 6", len(code))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Errorf("code %q has a non digit", code)
		}
	}
}
