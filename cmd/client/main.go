package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravitas-games/economy/internal/authority"
	"github.com/gravitas-games/economy/internal/catalog"
	"github.com/gravitas-games/economy/internal/config"
	"github.com/gravitas-games/economy/internal/floor"
	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/internal/itemsync"
	"github.com/gravitas-games/economy/internal/logger"
	"github.com/gravitas-games/economy/internal/shop"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/client.yaml"
	}
	playerID := os.Getenv("PLAYER_ID")
	if playerID == "" {
		playerID = "player"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}
	// stdout belongs to the console.
	log := logger.New(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, playerID, os.Stdin, os.Stdout, log); err != nil {
		log.Error("client stopped", "error", err)
		os.Exit(1)
	}
}

// newSession builds a player's local stores from the configured data files.
func newSession(cfg *config.Config, playerID string, out io.Writer, log *slog.Logger, opts ...itemsync.Option) (*itemsync.Session, error) {
	cat, combos, err := catalog.Load(cfg.Data.Items)
	if err != nil {
		return nil, err
	}
	defs, err := shop.Load(cfg.Data.Shops)
	if err != nil {
		return nil, err
	}
	shops, err := shop.NewEngine(cat, defs,
		shop.WithLogger(log),
		shop.WithRestockInterval(cfg.Shop.RestockInterval),
		shop.WithPlayerSoldTTL(cfg.Shop.PlayerSoldTTL),
		shop.WithBaseCeiling(cfg.Shop.BaseCeiling),
	)
	if err != nil {
		return nil, err
	}
	fl := floor.NewRegistry(
		floor.WithExpiry(cfg.Floor.Expiry),
		floor.WithPickupRange(cfg.Floor.PickupRange),
		floor.WithLogger(log),
	)
	inv := inventory.New("inv-"+playerID, playerID, inventory.WithCatalog(cat), inventory.WithLogger(log))
	if err := inv.Grant(cfg.Inventory.Starter); err != nil {
		log.Warn("starter kit incomplete", "error", err)
	}
	bank := inventory.NewBank(
		inventory.WithBankCapacity(cfg.Inventory.BankCapacity),
		inventory.WithMaxTabs(cfg.Inventory.MaxTabs),
		inventory.WithBankLogger(log),
	)

	opts = append([]itemsync.Option{
		itemsync.WithCombinations(combos),
		itemsync.WithPresenter(consolePresenter{out: out}),
		itemsync.WithLogger(log),
	}, opts...)
	return itemsync.New(playerID, inv, bank, fl, shops, opts...), nil
}

func run(ctx context.Context, cfg *config.Config, playerID string, in io.Reader, out io.Writer, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var opts []itemsync.Option
	var link *authority.Client
	if cfg.Authority.URL != "" {
		link = authority.New(cfg.Authority.URL, cfg.Authority.Token,
			authority.WithLogger(log),
			authority.WithHandshakeTimeout(cfg.Authority.DialTimeout),
		)
		opts = append(opts, itemsync.WithAuthority(link))
	}

	sess, err := newSession(cfg, playerID, out, log, opts...)
	if err != nil {
		return err
	}
	loop := itemsync.NewLoop(sess, cfg.Server.TickInterval)
	go loop.Run(ctx)

	if link != nil {
		if err := link.Dial(ctx); err != nil {
			// The same commands work offline against local rules.
			log.Warn("authority unreachable, playing offline", "error", err)
		} else {
			defer link.Close()
			go func() {
				if err := link.Run(ctx, loop.Deliver); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("authority link closed", "error", err)
				}
			}()
		}
	}

	sh := newShell(loop, out)
	fmt.Fprintln(out, "type help for commands")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := sh.Exec(ctx, line)
			var shown reportedError
			switch {
			case errors.Is(err, errQuit):
				return nil
			case errors.As(err, &shown):
			case err != nil:
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}
