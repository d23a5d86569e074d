package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/orderdesk/internal/auth"
	"github.com/kiwari-pos/orderdesk/internal/config"
	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/kiwari-pos/orderdesk/internal/logging"
	"github.com/kiwari-pos/orderdesk/internal/store"
	"github.com/sirupsen/logrus"
)

// seed prepares a local environment: it migrates the draft database, gives
// the user one empty draft and prints a bearer token for the API and /ws.
func main() {
	// CLI flags
	userFlag := flag.String("user", "", "User ID (UUID) to issue the token for")
	role := flag.String("role", enum.UserRoleAdmin, "Role claim")
	features := flag.String("features", enum.FeatureOrders+","+enum.FeatureDashboard, "Comma-separated feature claims")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	skipDB := flag.Bool("skip-db", false, "Only print a token")
	flag.Parse()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Environment)

	// Fall back to environment variables
	if *userFlag == "" {
		*userFlag = os.Getenv("SEED_USER_ID")
	}

	userID := uuid.New()
	if *userFlag != "" {
		id, err := uuid.Parse(*userFlag)
		if err != nil {
			log.WithError(err).Fatal("invalid user id")
		}
		userID = id
	}

	if cfg.IsProduction() {
		log.Warn("issuing a seed token in production, keep it short-lived")
	}

	if !*skipDB && cfg.DraftStore == config.DraftStorePostgres {
		if err := seedDraft(context.Background(), cfg, log, userID); err != nil {
			log.WithError(err).Fatal("seed drafts")
		}
	}

	token, err := auth.GenerateToken(cfg.JWTSecret, userID, *role, splitFeatures(*features), *ttl)
	if err != nil {
		log.WithError(err).Fatal("generate token")
	}

	log.WithFields(logrus.Fields{"user_id": userID, "role": *role, "expires_in": ttl.String()}).Info("seed completed")
	fmt.Println(token)
}

// seedDraft gives the user an empty draft unless they already have one.
func seedDraft(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, userID uuid.UUID) error {
	if err := store.Migrate(cfg.MigrationsURL, cfg.DatabaseURL); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	drafts := store.NewPostgres(pool)
	existing, err := drafts.ListDrafts(ctx, userID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.WithField("draft_id", existing[0].ID).Info("user already has a draft, skipping")
		return nil
	}

	d, err := drafts.SaveDraft(ctx, store.NewDraft(userID))
	if err != nil {
		return err
	}
	log.WithField("draft_id", d.ID).Info("created draft")
	return nil
}

func splitFeatures(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
