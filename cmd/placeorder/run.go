package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/GoPolymarket/neogate/internal/auth"
	"github.com/GoPolymarket/neogate/internal/broker"
	"github.com/GoPolymarket/neogate/internal/config"
	"github.com/GoPolymarket/neogate/internal/credentials"
	"github.com/GoPolymarket/neogate/internal/events"
	"github.com/GoPolymarket/neogate/internal/model"
	"github.com/GoPolymarket/neogate/internal/normalize"
	"github.com/GoPolymarket/neogate/internal/order"
	"github.com/GoPolymarket/neogate/internal/otp"
	"github.com/GoPolymarket/neogate/internal/pkg/apperrors"
	"github.com/GoPolymarket/neogate/internal/pkg/logger"
	"github.com/GoPolymarket/neogate/internal/repository"
	"github.com/GoPolymarket/neogate/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// placer is what a live run needs. *service.TradingService is one.
type placer interface {
	PlaceOrder(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error)
}

// builder wires the live stack. The returned func releases it.
type builder func(cfg *config.Config, console io.Writer) (placer, func(), error)

func run(ctx context.Context, opts *options, stdout, stderr io.Writer, build builder) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return apperrors.New(apperrors.ErrValidation, "load config", err).WithPhase(apperrors.PhaseConfig)
	}
	if opts.credentialsFile != "" {
		cfg.Credentials.File = opts.credentialsFile
	}

	level := cfg.Log.Level
	if opts.verbose {
		level = "debug"
	}
	logger.Setup(logger.Options{Level: level, Format: cfg.Log.Format, Output: stderr})

	req, err := buildRequest(opts, cfg.Order.DefaultProduct)
	if err != nil {
		return err
	}

	if !opts.yes {
		return printPreview(stdout, req)
	}

	trading, release, err := build(cfg, stdout)
	if err != nil {
		return err
	}
	defer release()

	result, err := trading.PlaceOrder(ctx, req)
	if err != nil {
		return err
	}
	return report(stdout, stderr, result)
}

func buildRequest(opts *options, defaultProduct string) (model.OrderRequest, error) {
	product := opts.product
	if product == "" {
		product = defaultProduct
	}
	key := opts.tag
	if key == "" {
		key = order.NewIdempotencyKey(order.DefaultTagPrefix)
	}
	req := model.OrderRequest{
		Segment:        opts.segment,
		Symbol:         opts.symbol,
		Side:           opts.side,
		Product:        product,
		OrderType:      opts.orderType,
		Quantity:       opts.qty,
		ClientTag:      opts.tag,
		IdempotencyKey: key,
	}
	var err error
	if req.LimitPrice, err = parsePrice("price", opts.price); err != nil {
		return req, err
	}
	if req.TriggerPrice, err = parsePrice("trigger", opts.trigger); err != nil {
		return req, err
	}
	return normalize.Order(req), nil
}

func parsePrice(name, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrValidation, "--%s %q is not a decimal", name, raw)
	}
	return &d, nil
}

func printPreview(w io.Writer, req model.OrderRequest) error {
	out, err := json.MarshalIndent(order.Preview(req), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "DRY RUN, nothing sent. Re-run with --yes to place:")
	fmt.Fprintln(w, string(out))
	return nil
}

// report prints the result. Anything but Accepted is an error so the exit code is 1.
func report(stdout, stderr io.Writer, r *model.OrderResult) error {
	out, _ := json.MarshalIndent(r, "", "  ")
	switch r.Outcome {
	case model.OutcomeAccepted:
		fmt.Fprintf(stdout, "Order placed: %s\n", r.VenueOrderID)
		fmt.Fprintln(stdout, string(out))
		return nil
	case model.OutcomeRejected:
		fmt.Fprintln(stderr, string(out))
		return apperrors.Newf(apperrors.ErrAuthRejected, "order rejected: %s %s", r.ReasonCode, r.Message).
			WithPhase(apperrors.PhasePlaceOrder)
	default:
		fmt.Fprintln(stderr, string(out))
		if !r.RequestSent {
			return apperrors.Newf(apperrors.ErrFatal, "order NOT placed, request never reached the venue (tag %s)", r.IdempotencyKey).
				WithPhase(apperrors.PhasePlaceOrder)
		}
		fmt.Fprintln(stderr, "!!! OUTCOME UNKNOWN: the order MAY HAVE BEEN PLACED.")
		fmt.Fprintf(stderr, "!!! Check the order book for tag %s before retrying.\n", r.IdempotencyKey)
		return apperrors.Newf(apperrors.ErrUnknown, "outcome unknown: %s", r.Message).
			WithPhase(apperrors.PhasePlaceOrder)
	}
}

// buildLive wires credentials, OTP, the handshake, the optional session cache
// and the order engine behind a TradingService.
func buildLive(cfg *config.Config, console io.Writer) (placer, func(), error) {
	sink := events.Multi{events.NewConsoleSink(console), events.LogSink{}}
	client := broker.NewClientFromConfig(cfg.Broker)

	gen := otp.NewGenerator(cfg.Auth.OTPPeriod(), cfg.Auth.OTPDigits)
	authenticator := auth.NewAuthenticator(client, gen, auth.ConfigFrom(cfg.Auth), sink)
	engine := order.NewEngine(client, order.ConfigFrom(cfg.Order, cfg.Broker), sink)

	release := func() {}
	var rdb *redis.Client
	if cfg.Session.Cache == "redis" || cfg.Risk.UsageStore == "redis" {
		var err error
		rdb, err = repository.NewRedisClient(cfg.Redis)
		if err != nil {
			// Redis 不可用时退回每次重新登录、进程内风控用量
			logger.Warn("redis unavailable, continuing without it", "error", err)
			rdb = nil
		} else {
			release = func() { _ = rdb.Close() }
		}
	}

	var cache auth.SessionCache
	if cfg.Session.Cache == "redis" && rdb != nil {
		cache = repository.NewRedisSessionCache(rdb, cfg.Session.CacheKey)
	}

	store := credentials.NewFileStore(cfg.Credentials.File, cfg.Credentials.EnvFallback)
	sessions := auth.NewManager(authenticator, store, cache, cfg.Session.TTL())
	trading := service.NewTradingService(sessions, engine)

	if cfg.Risk.Enabled() {
		var usage service.UsageRepo = service.NewRiskUsageStore()
		if cfg.Risk.UsageStore == "redis" && rdb != nil {
			usage = repository.NewRedisUsageRepo(rdb)
		}
		trading.WithRisk(service.NewRiskEngine(usage, cfg.Risk))
	}
	return trading, release, nil
}
