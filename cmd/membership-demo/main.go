package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/subset-labs/zk-membership-go/pkg/commitment"
	"github.com/subset-labs/zk-membership-go/pkg/config"
	"github.com/subset-labs/zk-membership-go/pkg/logger"
	"github.com/subset-labs/zk-membership-go/pkg/nullifier"
	nullifierbadger "github.com/subset-labs/zk-membership-go/pkg/nullifier/badger"
	nullifiermemory "github.com/subset-labs/zk-membership-go/pkg/nullifier/memory"
	nullifierredis "github.com/subset-labs/zk-membership-go/pkg/nullifier/redis"
	"github.com/subset-labs/zk-membership-go/pkg/prover"
	"github.com/subset-labs/zk-membership-go/pkg/types"
	"github.com/subset-labs/zk-membership-go/pkg/verifier"
	"github.com/subset-labs/zk-membership-go/pkg/zkhash"
)

func main() {
	app := &cli.App{
		Name:  "membership-demo",
		Usage: "End-to-end walkthrough of the succinct membership-proof engine",
		Description: `Runs the full flow on one process: registers secret commitments in the
append-only commitment tree, proves membership of one of them without
revealing which, verifies the proof, and demonstrates that replaying
the same nullifier is rejected.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "depth",
				Aliases: []string{"d"},
				Value:   8,
				Usage:   "Structural tree depth (capacity 2^depth)",
				EnvVars: []string{config.EnvTreeDepth},
			},
			&cli.StringFlag{
				Name:    "registry",
				Value:   string(config.RegistryTypeMemory),
				Usage:   "Nullifier registry backend: memory, badger, redis",
				EnvVars: []string{config.EnvRegistryType},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Storage directory for the badger registry",
				EnvVars: []string{config.EnvDataDir},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis address (host:port) for the redis registry",
				EnvVars: []string{config.EnvRedisAddress},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Value:   0,
				Usage:   "Redis database number (0-15)",
				EnvVars: []string{config.EnvRedisDB},
			},
			&cli.IntFlag{
				Name:  "members",
				Value: 4,
				Usage: "Number of secrets to register before proving",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvVerbose},
			},
		},
		Action: runDemo,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runDemo(c *cli.Context) error {
	cfg := &config.Config{
		TreeDepth:     c.Int("depth"),
		RegistryType:  config.RegistryType(c.String("registry")),
		DataDir:       c.String("data-dir"),
		RedisAddress:  c.String("redis-address"),
		RedisDB:       c.Int("redis-db"),
		Verbose:       c.Bool("verbose"),
		RedisPassword: os.Getenv(config.EnvRedisPassword),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	zl, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Verbose})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	registry, err := buildRegistry(cfg, zl)
	if err != nil {
		return fmt.Errorf("failed to create nullifier registry: %w", err)
	}
	defer func() { _ = registry.Close() }()

	if err := registry.HealthCheck(); err != nil {
		return fmt.Errorf("nullifier registry unhealthy: %w", err)
	}

	tree, err := commitment.NewTree(cfg.TreeDepth)
	if err != nil {
		return fmt.Errorf("failed to create commitment tree: %w", err)
	}
	tree.Subscribe(func(r types.InsertionRecord) {
		zl.Sugar().Debugw("leaf inserted",
			"index", r.Index,
			"leaf", types.EncodeElement(r.Leaf),
			"newRoot", types.EncodeElement(r.NewRoot),
		)
	})

	fmt.Printf("Compiling membership circuit (depth %d) and running setup...\n", cfg.TreeDepth)
	engine, err := prover.NewEngine(cfg.TreeDepth, zl)
	if err != nil {
		return fmt.Errorf("failed to create proof engine: %w", err)
	}

	service, err := verifier.NewService(engine, tree, registry, zl)
	if err != nil {
		return fmt.Errorf("failed to create verifier service: %w", err)
	}

	// Register commitments for a handful of secret holders.
	members := c.Int("members")
	fmt.Printf("Registering %d commitments...\n", members)
	secrets := make([]fr.Element, members)
	for i := range secrets {
		if _, err := secrets[i].SetRandom(); err != nil {
			return fmt.Errorf("failed to generate secret: %w", err)
		}
		index, err := tree.Insert(zkhash.Sum1(secrets[i]))
		if err != nil {
			return fmt.Errorf("failed to insert commitment: %w", err)
		}
		fmt.Printf("  commitment %d -> index %d\n", i, index)
	}
	fmt.Printf("Tree root: %s\n", types.EncodeElement(tree.Root()))

	// A holder proves membership without revealing which leaf is theirs.
	holder := members / 2
	path, err := tree.PathOf(uint32(holder))
	if err != nil {
		return fmt.Errorf("failed to fetch path: %w", err)
	}
	req, err := engine.BuildWitness(secrets[holder], path, tree.Root())
	if err != nil {
		return fmt.Errorf("failed to build witness: %w", err)
	}

	fmt.Println("Generating proof...")
	artifact, err := engine.Prove(req)
	if err != nil {
		return fmt.Errorf("proving failed: %w", err)
	}
	fmt.Printf("Proof: %d bytes, nullifier %s\n", len(artifact.Proof), types.EncodeElement(artifact.Nullifier))

	// First submission is accepted.
	if err := service.Accept(artifact); err != nil {
		return fmt.Errorf("expected acceptance, got: %w", err)
	}
	fmt.Println("Proof accepted.")

	// A replay of the same artifact must be rejected.
	err = service.Accept(artifact)
	switch {
	case err == nil:
		return fmt.Errorf("replay was accepted, replay guard is broken")
	case errors.Is(err, nullifier.ErrAlreadyUsed):
		fmt.Println("Replay rejected: nullifier already used.")
	default:
		return fmt.Errorf("unexpected replay rejection: %w", err)
	}

	// A tampered public input must be rejected as an invalid proof.
	tampered := *artifact
	tampered.Nullifier = zkhash.Sum1(fr.NewElement(1))
	if err := service.Accept(&tampered); err != nil {
		fmt.Printf("Tampered artifact rejected: %v\n", err)
	} else {
		return fmt.Errorf("tampered artifact was accepted")
	}

	fmt.Println("Demo complete.")
	return nil
}

func buildRegistry(cfg *config.Config, zl *zap.Logger) (nullifier.Registry, error) {
	switch cfg.RegistryType {
	case config.RegistryTypeMemory:
		zl.Sugar().Warnw("using in-memory nullifier registry; spent nullifiers are lost on restart")
		return nullifiermemory.NewMemoryRegistry(), nil
	case config.RegistryTypeBadger:
		return nullifierbadger.NewBadgerRegistry(cfg.DataDir, zl)
	case config.RegistryTypeRedis:
		return nullifierredis.NewRedisRegistry(&nullifierredis.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, zl)
	default:
		return nil, fmt.Errorf("unsupported registry type: %s", cfg.RegistryType)
	}
}
