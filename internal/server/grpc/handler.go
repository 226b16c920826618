package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/authz"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	s.logger.Debug(ctx, "Registration request")

	result, err := s.accounts.Register(ctx, services.RegisterInput{
		FirstName:   field(req, "firstName"),
		LastName:    field(req, "lastName"),
		Email:       field(req, "email"),
		Password:    field(req, "password"),
		Username:    field(req, "username"),
		PhoneNumber: field(req, "phoneNumber"),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return authStruct(result)
}

func (s *GRPCServer) Authenticate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	result, err := s.accounts.Authenticate(ctx, field(req, "email"), field(req, "password"))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return authStruct(result)
}

func (s *GRPCServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {

	p, ok := authz.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	authorities := make([]any, 0, len(p.Authorities))
	for _, a := range p.Authorities {
		authorities = append(authorities, string(a))
	}

	out, err := structpb.NewStruct(map[string]any{
		"subject":     p.Subject,
		"accountId":   p.AccountID,
		"role":        string(p.Role),
		"authorities": authorities,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrorInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorDuplicateAccount):
		return status.Error(codes.AlreadyExists, err.Error())
	case common.IsBadCredentials(err):
		return status.Error(codes.Unauthenticated, common.CredentialsIncorrect)
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func field(s *structpb.Struct, name string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[name].GetStringValue()
}

func authStruct(res *services.AuthResult) (*structpb.Struct, error) {
	a := res.Account
	out, err := structpb.NewStruct(map[string]any{
		"token":     res.Token,
		"expiresAt": res.ExpiresAt.UTC().Format(time.RFC3339),
		"account": map[string]any{
			"id":        a.ID,
			"email":     a.Email,
			"firstName": a.FirstName,
			"lastName":  a.LastName,
			"role":      string(a.Role),
		},
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}
