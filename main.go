package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
	"github.com/tanakritw/pizzabot/bot/engine"
	"github.com/tanakritw/pizzabot/bot/handlers"
	"github.com/tanakritw/pizzabot/bot/reminder"
	statex "github.com/tanakritw/pizzabot/bot/state"
	"github.com/tanakritw/pizzabot/pkg/commerce"
	configx "github.com/tanakritw/pizzabot/pkg/config"
	"github.com/tanakritw/pizzabot/pkg/geocode"
	_ "github.com/tanakritw/pizzabot/pkg/logger/autoload"
	metricsx "github.com/tanakritw/pizzabot/pkg/metrics"
	"github.com/tanakritw/pizzabot/pkg/ratelimit"
)

type AppConfig struct {
	SessionBackend string  `envconfig:"SESSION_BACKEND" split_words:"true" default:"redis"`
	RatePerChat    float64 `envconfig:"RATE_PER_CHAT" split_words:"true" default:"1"`
	RateBurst      int     `envconfig:"RATE_BURST" split_words:"true" default:"5"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("BOT")

	commerceCfg := configx.MustNew[commerce.Config]("COMMERCE")
	commerceClient := commerce.MustNew(*commerceCfg)
	geocoder := geocode.MustNew(*configx.MustNew[geocode.Config]("GEOCODER"))

	m := metricsx.New(prometheus.DefaultRegisterer)

	tokenCache := commerce.NewTokenCache(
		commerceClient.Authenticate,
		commerce.WithRefreshHook(m.TokenRefreshes.Inc),
	)
	tokens := tokenCache.Bind(commerce.Credentials{
		ClientID:     commerceCfg.ClientID,
		ClientSecret: commerceCfg.ClientSecret,
	})

	store := buildStore(appCfg.SessionBackend)

	notifier := consoleNotifier{}
	reminders := reminder.New(notifier, *configx.MustNew[reminder.Config]("REMINDER"))
	defer reminders.StopAll()

	deps := handlers.Deps{
		Commerce:  commerceClient,
		Tokens:    tokens,
		Geocoder:  geocoder,
		Reminders: reminders,
	}

	eng, err := engine.New(
		store,
		handlers.Table(deps),
		*configx.MustNew[engine.Config]("ENGINE"),
		engine.WithMetrics(m),
		engine.WithRateLimiter(ratelimit.NewKeyed(appCfg.RatePerChat, appCfg.RateBurst, 0)),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("engine construction failed")
	}

	log.Info().Str("session_backend", appCfg.SessionBackend).Msg("pizzabot ready")
	runConsole(eng)
}

func buildStore(backend string) statex.Store {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "postgres":
		store, err := statex.NewPostgresStore(*configx.MustNew[statex.PostgresConfig]("POSTGRES"))
		if err != nil {
			log.Fatal().Err(err).Msg("postgres store construction failed")
		}
		if err := store.Init(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("postgres store init failed")
		}
		return store
	default:
		store, err := statex.NewUpstashRedisStore(*configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS"))
		if err != nil {
			log.Fatal().Err(err).Msg("redis store construction failed")
		}
		return store
	}
}

// runConsole is a throwaway local transport for poking at the dialog without
// a chat platform: plain lines are text events, `/cb <data>` is a button
// tap, `/loc <lat> <lon>` is a shared location.
func runConsole(eng *engine.Engine) {
	const chatID = "console"

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("pizzabot console. Send /start to begin.")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		ev := contractx.Event{ChatID: chatID, Kind: contractx.EventText, Text: line}
		switch {
		case strings.HasPrefix(line, "/cb "):
			ev = contractx.Event{
				ChatID:  chatID,
				Kind:    contractx.EventCallback,
				Payload: strings.TrimSpace(strings.TrimPrefix(line, "/cb ")),
			}
		case strings.HasPrefix(line, "/loc "):
			fields := strings.Fields(strings.TrimPrefix(line, "/loc "))
			if len(fields) != 2 {
				fmt.Println("usage: /loc <lat> <lon>")
				continue
			}
			lat, latErr := strconv.ParseFloat(fields[0], 64)
			lon, lonErr := strconv.ParseFloat(fields[1], 64)
			if latErr != nil || lonErr != nil {
				fmt.Println("usage: /loc <lat> <lon>")
				continue
			}
			ev = contractx.Event{
				ChatID:   chatID,
				Kind:     contractx.EventLocation,
				Location: &contractx.Point{Latitude: lat, Longitude: lon},
			}
		}

		replies, err := eng.HandleEvent(context.Background(), ev)
		if err != nil {
			log.Error().Err(err).Msg("event rejected")
			continue
		}
		for _, reply := range replies {
			fmt.Println(reply.Text)
			for _, row := range reply.Buttons {
				for _, btn := range row {
					fmt.Printf("  [%s] /cb %s\n", btn.Label, btn.Data)
				}
			}
		}
	}
}

type consoleNotifier struct{}

func (consoleNotifier) Notify(_ context.Context, chatID, text string) error {
	fmt.Printf("(reminder for %s) %s\n", chatID, text)
	return nil
}
