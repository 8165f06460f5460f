// tuisessiond is a demo entrypoint gluing pkg/transport, pkg/session,
// pkg/rvm, and pkg/vectordb together into a runnable secure-session
// server: it accepts SPAKE2+ logins and ECDHE+PSK resumptions, and serves
// a tiny request/response protocol for inserting, deleting, and searching
// vectors over each authenticated connection.
//
// Usage:
//
//	tuisessiond --config tuisessiond.yaml
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/tui-server/secure-session/internal/config"
	"github.com/tui-server/secure-session/pkg/bruteforce"
	"github.com/tui-server/secure-session/pkg/fakecred"
	"github.com/tui-server/secure-session/pkg/session"
	"github.com/tui-server/secure-session/pkg/transport"
	"github.com/tui-server/secure-session/pkg/uuid"
	"github.com/tui-server/secure-session/pkg/vectordb"
)

var flagConfigPath string

var rootCmd = &cobra.Command{
	Use:   "tuisessiond",
	Short: "Secure-session demo server: SPAKE2+/ECDHE+PSK login plus a vector database",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfigPath, "config", "tuisessiond.yaml", "path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return err
	}
	verifiers, err := config.DeriveUsers(cfg.Users)
	if err != nil {
		return err
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	logger := loggerFactory.NewLogger("tuisessiond")

	db, created, err := vectordb.Open(vectordb.Options{
		Path:          cfg.VectorDB.Path,
		Dimension:     cfg.VectorDB.Dimension,
		SoftWALLimit:  cfg.VectorDB.SoftWALLimitBytes,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Infof("vector database at %s ready (created=%v, dimension=%d)", cfg.VectorDB.Path, created, db.Dimension())

	svc := NewVectorService(db)

	fakeGen, err := fakecred.NewGenerator(cfg.FakeCredCacheSize)
	if err != nil {
		return err
	}
	limiter := bruteforce.New(cfg.BruteForce.TrialsAllowedEachWindow, cfg.BruteForce.InitialBlockTime, cfg.BruteForce.MaxBlockTime)

	lookup := func(_ context.Context, username string) (salt, w0, l []byte, userID uuid.UUID, found bool, err error) {
		v, ok := verifiers[username]
		if !ok {
			return nil, nil, nil, uuid.UUID{}, false, nil
		}
		return v.Salt, v.W0, v.L, v.UserID, true, nil
	}

	ln, err := transport.ListenTCP(transport.TCPConfig{
		ListenAddr:    cfg.ListenAddr,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return err
	}
	defer ln.Close()

	srv := session.NewServer(session.Config{
		Transport:         ln,
		CredentialLookup:  lookup,
		FakeCredGenerator: fakeGen,
		BruteForceLimiter: limiter,
		LoggerFactory:     loggerFactory,
		HandshakeContext:  []byte(cfg.HandshakeContext),
		HandshakeTimeout:  cfg.HandshakeTimeout,
		OnConnection: func(c *session.Connection) {
			serveConnection(svc, c)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	logger.Infof("listening on %s", ln.Addr())
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
