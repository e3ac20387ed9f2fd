package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/user"
)

// addUser updates or creates a user.User, along with the profile of students.
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd string, role user.Role) error {
	now := time.Now().UTC()
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	isNew := err == user.ErrNotFound
	if err != nil && !isNew {
		return err
	}
	if isNew {
		if name == "" {
			name = email
		}
		usr = user.User{Email: email, CreatedAt: now}
	}
	if name != "" {
		usr.Name = name
	}
	usr.Role = role
	usr.IsActive = true
	usr.EmailVerified = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if isNew {
		if usr, err = cli.usrRepo.CreateUser(ctx, usr); err != nil {
			return err
		}
	} else if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}

	if usr.IsStudent() && usr.Profile == nil {
		_, err = cli.usrRepo.CreateProfile(ctx, user.StudentProfile{UserID: usr.ID, CreatedAt: now, UpdatedAt: now})
		return errors.Wrap(err, "creating student profile")
	}
	return nil
}
