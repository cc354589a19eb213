// The spellbook harness runs the engine headless against a Redis or
// in-memory host, seeding SRD spell lists on first start.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Sayshal/spell-book/internal/bootstrap"
	"github.com/Sayshal/spell-book/internal/clients/dnd5e"
	"github.com/Sayshal/spell-book/internal/config"
	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	hostpkg "github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/host/memoryhost"
	"github.com/Sayshal/spell-book/internal/host/redishost"
)

// seededClasses are the SRD classes the harness seeds lists for.
var seededClasses = []string{
	spellbook.ClassWizard,
	spellbook.ClassCleric,
	spellbook.ClassDruid,
	spellbook.ClassPaladin,
	spellbook.ClassRanger,
	spellbook.ClassBard,
	spellbook.ClassSorcerer,
	spellbook.ClassWarlock,
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file")
	}

	cfg := config.LoadEnv()
	ctx := context.Background()

	// Create D&D 5e API client
	contentClient, err := dnd5e.New(&dnd5e.Config{
		HttpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		BaseURL: cfg.DND5E.BaseURL,
	})
	if err != nil {
		log.Fatalf("Failed to create D&D 5e client: %v", err)
	}

	// Keep the Redis client for cleanup
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, parseErr := redis.ParseURL(cfg.Redis.URL)
		if parseErr != nil {
			log.Printf("Failed to parse Redis URL: %v", parseErr)
		} else {
			log.Printf("Connecting to Redis at: %s", opts.Addr)
			redisClient = redis.NewClient(opts)
		}
	} else if cfg.Redis.Addr != "" {
		log.Printf("Connecting to Redis at: %s", cfg.Redis.Addr)
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var engineHost hostpkg.Host
	if redisClient != nil {
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			log.Printf("Failed to connect to Redis: %v", pingErr)
			log.Println("Falling back to the in-memory host")
			redisClient = nil
		} else {
			log.Println("Connected to Redis")
			redisHost := redishost.New(&redishost.Config{Client: redisClient})
			if uerr := redisHost.PutUser(ctx, &hostpkg.User{ID: "gm", Name: "Gamemaster", IsGM: true}); uerr != nil {
				log.Fatalf("Failed to seed GM user: %v", uerr)
			}
			engineHost = redisHost
		}
	}
	if engineHost == nil {
		log.Println("Using in-memory host")
		memory := memoryhost.New(nil)
		memory.AddUser(&hostpkg.User{ID: "gm", Name: "Gamemaster", IsGM: true})
		engineHost = memory
	}

	provider := bootstrap.NewProvider(&bootstrap.ProviderConfig{
		Host:    engineHost,
		Content: contentClient,
	})

	if provider.Seeder != nil {
		if seedErr := provider.Seeder.SeedStandardLists(ctx, seededClasses); seedErr != nil {
			log.Printf("Failed to seed standard lists: %v", seedErr)
		}
	}

	lifecycle := bootstrap.NewLifecycle(provider, engineHost)
	if err := lifecycle.Start(ctx, "gm"); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	log.Println("Spell book engine is running. Press CTRL-C to exit.")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	lifecycle.Stop()
	if redisClient != nil {
		if cerr := redisClient.Close(); cerr != nil {
			log.Printf("Failed to close Redis client: %v", cerr)
		}
	}
}
