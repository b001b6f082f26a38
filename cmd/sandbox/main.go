package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/caarlos0/env/v11"

	"docportal/handler"
	"docportal/internal/integrations/paramstore"
)

type settings struct {
	FixturesPath string        `env:"SANDBOX_FIXTURES"`
	SessionTTL   time.Duration `env:"SANDBOX_SESSION_TTL"`
	// ParamPrefix enables loading session_secret and otp from the parameter
	// store path it names.
	ParamPrefix string `env:"SANDBOX_PARAM_PREFIX"`
}

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	var s settings
	if err := env.Parse(&s); err != nil {
		slog.Error("failed to parse environment", "err", err)
		os.Exit(1)
	}

	fx, err := loadFixtures(s.FixturesPath)
	if err != nil {
		slog.Error("failed to load fixtures", "err", err)
		os.Exit(1)
	}
	if s.SessionTTL > 0 {
		fx.SessionTTL = s.SessionTTL
	}

	// ---- Deployment secrets ----
	if s.ParamPrefix != "" {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		store, err := paramstore.New(awsssm.NewFromConfig(cfg), s.ParamPrefix)
		if err != nil {
			slog.Error("failed to create parameter store", "err", err)
			os.Exit(1)
		}
		if err := applySecrets(ctx, store, &fx); err != nil {
			slog.Error("failed to read sandbox secrets", "err", err)
			os.Exit(1)
		}
	}

	// ---- Handler ----
	sb, err := handler.NewSandbox(fx)
	if err != nil {
		slog.Error("failed to create sandbox", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewHandler(sb)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func loadFixtures(path string) (handler.Fixtures, error) {
	if path == "" {
		return handler.DefaultFixtures()
	}
	return handler.LoadFixtures(path)
}

// secretSource is the part of *paramstore.Store the sandbox reads from.
type secretSource interface {
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
}

// applySecrets overrides the signing secret, which must exist, and the shared
// OTP, which may.
func applySecrets(ctx context.Context, src secretSource, fx *handler.Fixtures) error {
	values, err := src.GetMany(ctx, "session_secret", "otp")
	if err != nil {
		return err
	}
	secret, ok := values["session_secret"]
	if !ok || secret == "" {
		return fmt.Errorf("%w: session_secret", paramstore.ErrNotFound)
	}
	fx.Secret = secret
	if otp := values["otp"]; otp != "" {
		fx.OTP = otp
	}
	return nil
}
