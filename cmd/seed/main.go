// Command seed ensures the sample accounts (one admin, one field officer,
// one member of the public) and a handful of bins exist. It is safe to run
// repeatedly: existing identities, profiles and bins are left alone.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/smartbin/internal/apperror"
	"github.com/sakif/smartbin/internal/auth"
	"github.com/sakif/smartbin/internal/config"
	"github.com/sakif/smartbin/internal/identity"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
	"github.com/sakif/smartbin/internal/server"
)

const samplePassword = "password123"

type sampleUser struct {
	email string
	name  string
	phone string
	role  model.Role
}

var sampleUsers = []sampleUser{
	{"admin@example.com", "Admin User", "+62812345678", model.RoleAdmin},
	{"ahmad@example.com", "Officer Ahmad", "+62812345679", model.RoleOfficer},
	{"budi@example.com", "Budi Santoso", "+62812345680", model.RolePublic},
}

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("seeding failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("sample data ensured")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := server.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	passwords := auth.NewPasswordService()
	provider, err := server.NewIdentity(cfg, store.Users(), passwords)
	if err != nil {
		return err
	}

	var officerID *string
	for _, s := range sampleUsers {
		user, err := ensureUser(ctx, provider, store.Users(), passwords, s)
		if err != nil {
			return fmt.Errorf("seeding %s: %w", s.email, err)
		}
		if user == nil {
			logger.Warn("auth user exists but has no local profile; log in once to create it",
				slog.String("email", s.email))
			continue
		}
		logger.Info("user ready", slog.String("email", user.Email), slog.String("role", string(user.Role)))
		if user.Role == model.RoleOfficer {
			officerID = &user.ID
		}
	}

	created, err := ensureBins(ctx, store.Bins(), officerID)
	if err != nil {
		return err
	}
	logger.Info("bins ready", slog.Int("created", created))
	return nil
}

// ensureUser returns nil, nil when the identity already exists upstream but
// no local profile carries its id.
func ensureUser(ctx context.Context, provider identity.Provider, users repository.UserRepository,
	passwords *auth.PasswordService, s sampleUser) (*model.User, error) {

	existing, err := users.GetByEmail(ctx, s.email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	ident, err := provider.CreateUser(ctx, s.email, samplePassword, identity.Metadata{Name: s.name, Phone: s.phone})
	if errors.Is(err, identity.ErrAlreadyRegistered) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	hash, err := passwords.Hash(samplePassword)
	if err != nil {
		return nil, err
	}
	phone := s.phone
	return users.EnsureProfile(ctx, &model.User{
		ID:           ident.ID,
		Name:         s.name,
		Email:        ident.Email,
		Phone:        &phone,
		Role:         s.role,
		PasswordHash: hash,
	})
}

func ensureBins(ctx context.Context, bins repository.BinRepository, officerID *string) (int, error) {
	existing, err := bins.List(ctx, model.BinFilter{Limit: 1})
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	samples := []model.Bin{
		{Name: "Bin Taman Suropati", Location: "Taman Suropati, Menteng", Latitude: ptr(-6.1995), Longitude: ptr(106.8325), FillLevel: 35, BatteryLevel: 88, SensorID: ptr("SB-001")},
		{Name: "Bin Stasiun Gondangdia", Location: "Jl. Srikaya, Gondangdia", Latitude: ptr(-6.1857), Longitude: ptr(106.8326), FillLevel: 76, BatteryLevel: 64, SensorID: ptr("SB-002")},
		{Name: "Bin Pasar Baru", Location: "Pasar Baru, Sawah Besar", Latitude: ptr(-6.1630), Longitude: ptr(106.8345), FillLevel: 93, BatteryLevel: 15, SensorID: ptr("SB-003")},
		{Name: "Bin Monas Barat", Location: "Monas, Gambir", Latitude: ptr(-6.1754), Longitude: ptr(106.8272), FillLevel: 10, BatteryLevel: 100},
	}
	for i := range samples {
		b := &samples[i]
		b.Status = model.StatusForFill(b.FillLevel)
		b.Capacity = 120
		b.FieldOfficerID = officerID
		if err := bins.Create(ctx, b); err != nil {
			return i, fmt.Errorf("creating bin %q: %w", b.Name, err)
		}
	}
	return len(samples), nil
}

func ptr[T any](v T) *T { return &v }
