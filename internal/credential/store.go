package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"sield/internal/config"
	"sield/internal/fileutil"
	"sield/internal/logging"
)

// Source names where the active credential came from.
type Source string

const (
	SourceApplication Source = "application"
	SourceSystem      Source = "system"
)

// Store verifies and sets the device-unlock credential.
type Store struct {
	passwordFile string
	passwdFile   string
	shadowFile   string
	superUser    string
	algorithm    string
	su           suVerifier
	logger       *slog.Logger
}

// NewStore builds a Store from configuration.
func NewStore(cfg *config.Config, logger *slog.Logger) *Store {
	return &Store{
		passwordFile: cfg.Auth.PasswordFile,
		passwdFile:   cfg.Auth.PasswdFile,
		shadowFile:   cfg.Auth.ShadowFile,
		superUser:    cfg.Auth.SuperUser,
		algorithm:    cfg.Auth.HashAlgorithm,
		su:           verifyWithSu,
		logger:       logging.NewComponentLogger(logger, "credential"),
	}
}

// resolve returns the hash to check against and where it came from.
func (s *Store) resolve() (string, Source, error) {
	hash, err := readApplicationHash(s.passwordFile)
	if err != nil {
		return "", "", err
	}
	if hash != "" {
		return hash, SourceApplication, nil
	}
	hash, err = systemHash(s.passwdFile, s.shadowFile, s.superUser)
	if err != nil {
		return "", "", err
	}
	return hash, SourceSystem, nil
}

// Verify reports whether password matches the active credential. A false
// result with nil error is a plain mismatch.
func (s *Store) Verify(ctx context.Context, password []byte) (bool, error) {
	hash, source, err := s.resolve()
	if err != nil {
		return false, fmt.Errorf("resolve credential: %w", err)
	}
	ok, err := verifyHash(hash, password)
	switch {
	case err == nil:
		return ok, nil
	case errors.Is(err, ErrUnsupportedHash) && source == SourceSystem && s.su != nil:
		s.logger.Debug("system hash format not handled in-process; asking su",
			logging.String("user", s.superUser),
		)
		return s.su(ctx, s.superUser, password)
	case errors.Is(err, ErrLocked):
		logging.WarnWithContext(s.logger, "credential is locked; every attempt will fail", "credential_locked",
			logging.String("source", string(source)),
			logging.String(logging.FieldErrorHint, "set an application password with 'sield passwd'"),
			logging.String(logging.FieldImpact, "devices cannot be unlocked"),
		)
		return false, nil
	default:
		return false, err
	}
}

// HasApplicationCredential reports whether the application password file
// holds a hash.
func (s *Store) HasApplicationCredential() (bool, error) {
	hash, err := readApplicationHash(s.passwordFile)
	return hash != "", err
}

// Set hashes password with a fresh salt and replaces the application
// password file. Nothing is written if hashing fails.
func (s *Store) Set(password []byte) error {
	if len(password) == 0 {
		return errors.New("password must not be empty")
	}
	hash, err := Hash(password, s.algorithm)
	if err != nil {
		return err
	}
	if ok, err := verifyHash(hash, password); err != nil || !ok {
		return fmt.Errorf("generated hash failed self-check: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.passwordFile), 0o755); err != nil {
		return fmt.Errorf("create password directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.passwordFile, []byte(hash+"\n"), 0o600); err != nil {
		return fmt.Errorf("write password file: %w", err)
	}
	s.logger.Info("application password updated",
		logging.String(logging.FieldEventType, "password_updated"),
		logging.String("path", s.passwordFile),
	)
	return nil
}
