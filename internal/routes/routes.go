package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kudipay/kudipay/internal/apikey"
	"github.com/kudipay/kudipay/internal/auth"
	"github.com/kudipay/kudipay/internal/config"
	"github.com/kudipay/kudipay/internal/deposit"
	"github.com/kudipay/kudipay/internal/identity"
	"github.com/kudipay/kudipay/internal/ledger"
	"github.com/kudipay/kudipay/internal/middleware"
	"github.com/kudipay/kudipay/internal/notification"
	"github.com/kudipay/kudipay/internal/transfer"
	"github.com/kudipay/kudipay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Stores and repositories
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
	}

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}

	var keyRepo apikey.Repository
	if d.DB != nil {
		keyRepo = apikey.NewPostgresRepository(d.DB)
	} else {
		keyRepo = apikey.NewMemoryRepository()
	}

	// Services and handlers
	notifier := notification.NewLoggerNotifier(d.Logger)
	walletSvc := wallet.NewService(store)
	identitySvc := identity.NewService(identityRepo)
	tokenSvc := auth.NewTokenService(d.Cfg.JWTSecret, d.Cfg.AppName)
	keySvc := apikey.NewService(keyRepo)
	depositSvc := deposit.NewService(store, d.Cfg.WebhookSecret, notifier)
	transferSvc := transfer.NewService(store, notifier)

	authHandler := auth.NewHandler(identitySvc, walletSvc, tokenSvc)
	walletHandler := wallet.NewHandler(walletSvc)
	keyHandler := apikey.NewHandler(keySvc)
	depositHandler := deposit.NewHandler(depositSvc)
	transferHandler := transfer.NewHandler(transferSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)
	RegisterWebhookRoutes(api, depositHandler)

	// Protected routes, reachable with a bearer token or an API key carrying
	// the matching permission. The permission middleware is attached per
	// route, a shared prefix group would run every permission check on every
	// request.
	jwtmw := middleware.JWTAuth(tokenSvc)
	readAuth := []fiber.Handler{middleware.APIKeyAuth(keySvc, apikey.PermissionRead), jwtmw}
	depositAuth := []fiber.Handler{middleware.APIKeyAuth(keySvc, apikey.PermissionDeposit), jwtmw}
	transferAuth := []fiber.Handler{middleware.APIKeyAuth(keySvc, apikey.PermissionTransfer), jwtmw}

	RegisterWalletRoutes(api, walletHandler, readAuth)
	RegisterDepositRoutes(api, depositHandler, readAuth, depositAuth)
	RegisterTransferRoutes(api, transferHandler, transferAuth)

	// Key management always requires a session, an API key cannot mint keys.
	keysGroup := api.Group("/keys", jwtmw)
	RegisterKeyRoutes(keysGroup, keyHandler)

	return nil
}

// guarded prepends the auth chain to the terminal handler for one route.
func guarded(auth []fiber.Handler, h fiber.Handler) []fiber.Handler {
	chain := make([]fiber.Handler, 0, len(auth)+1)
	chain = append(chain, auth...)
	return append(chain, h)
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
