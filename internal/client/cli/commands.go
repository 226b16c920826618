package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/httpapi"
)

func (a *App) Register(ctx context.Context) error {
	var req httpapi.RegisterRequest
	prompts := []struct {
		label string
		dst   *string
	}{
		{"Enter email", &req.Email},
		{"Enter first name", &req.FirstName},
		{"Enter last name", &req.LastName},
		{"Enter user name (optional)", &req.Username},
		{"Enter phone number (optional)", &req.PhoneNumber},
	}
	for _, p := range prompts {
		v, err := GetSimpleText(a.reader, p.label, a.out)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		*p.dst = v
	}

	password, err := GetPassword(a.out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer common.WipeByteArray(password)
	req.Password = string(password)

	resp, err := a.api.Register(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Account registered")
	a.printToken(resp)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	password, err := GetPassword(a.out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer common.WipeByteArray(password)

	resp, err := a.api.Authenticate(ctx, email, string(password))
	if err != nil {
		return err
	}

	a.printToken(resp)
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	if err := a.requireToken(); err != nil {
		return err
	}

	me, err := a.api.Me(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "subject:     %s\n", me.Subject)
	fmt.Fprintf(a.out, "role:        %s\n", me.Role)
	fmt.Fprintf(a.out, "authorities: %s\n", strings.Join(me.Authorities, ", "))
	if acc := me.Account; acc != nil {
		fmt.Fprintf(a.out, "name:        %s %s\n", acc.FirstName, acc.LastName)
		fmt.Fprintf(a.out, "id:          %s\n", acc.ID)
	}
	return nil
}

func (a *App) Delete(ctx context.Context, email string) error {
	if err := a.requireToken(); err != nil {
		return err
	}

	resp, err := a.api.Delete(ctx, email)
	if err != nil {
		return err
	}

	msg := resp.Message
	if msg == "" {
		msg = "Account deleted"
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *App) printToken(resp *httpapi.AuthResponse) {
	if resp == nil || resp.Token == "" {
		return
	}
	fmt.Fprintf(a.out, "token: %s\n", resp.Token)
	if resp.ExpiresAt != nil {
		fmt.Fprintf(a.out, "expires: %s\n", resp.ExpiresAt.Format(time.RFC3339))
	}
}
