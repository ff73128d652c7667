package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"edital-assistant/internal/chunker"
	"edital-assistant/internal/config"
	"edital-assistant/internal/db"
	"edital-assistant/internal/embedding"
	"edital-assistant/internal/helper"
	"edital-assistant/internal/llmservice"
	"edital-assistant/internal/parser"
	"edital-assistant/internal/provider"
	"edital-assistant/internal/rag"
	"edital-assistant/internal/session"
	"edital-assistant/internal/tui"
	"edital-assistant/internal/web"
)

const (
	configFilePath = "./configs/config.yaml"
	tuiLogFile     = "ale.log"
)

// fileList collects repeated -file flags.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	configPath := flag.String("config", configFilePath, "Path to the config file")
	ui := flag.String("ui", "web", "User interface: web or tui")
	addr := flag.String("addr", "", "Listen address for the web interface (overrides config)")
	dryRun := flag.Bool("dry-run", false, "Parse and chunk the -file documents, print the chunks and exit")
	var files fileList
	flag.Var(&files, "file", "Document to process at startup (repeatable)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		setupLogger(os.Stdout, "info")
		log.Fatal().Err(err).Msg("Error loading config")
	}

	logOut := io.Writer(os.Stdout)
	if *ui == "tui" && !*dryRun {
		f, err := os.OpenFile(tuiLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	setupLogger(logOut, cfg.Log.Level)
	log.Debug().Interface("config", redacted(*cfg)).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chunking := chunker.Options{
		Size:      cfg.RAG.ChunkSize,
		Overlap:   cfg.RAG.ChunkOverlap,
		Separator: cfg.RAG.Separator,
	}
	sources := make([]parser.Source, len(files))
	for i, path := range files {
		sources[i] = parser.FileSource(path)
	}

	if *dryRun {
		chunkDocuments(ctx, chunking, sources)
		return
	}

	sess, closeSession := newSession(ctx, cfg, chunking)
	defer closeSession()

	if len(sources) > 0 {
		report, err := sess.Process(ctx, sources)
		if err != nil {
			_, msg := session.Describe(err)
			log.Fatal().Err(err).Msg(msg)
		}
		log.Info().Int("documents", report.Documents).Int("pages", report.Pages).Int("chunks", report.Chunks).Msg("Preprocessed documents")
	}

	switch *ui {
	case "web":
		listen := cfg.Server.Addr
		if *addr != "" {
			listen = *addr
		}
		srv, err := web.NewServer(sess)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating web server")
		}
		if err := srv.ListenAndServe(ctx, listen); err != nil {
			log.Fatal().Err(err).Msg("Web server failed")
		}
	case "tui":
		if err := tui.Run(ctx, sess); err != nil {
			log.Fatal().Err(err).Msg("Terminal interface failed")
		}
	default:
		log.Fatal().Str("ui", *ui).Msg("Unknown interface, expected web or tui")
	}
}

func setupLogger(out io.Writer, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

// newSession wires the providers and the optional archive. The returned
// func releases the archive connection.
func newSession(ctx context.Context, cfg *config.Config, chunking chunker.Options) (*session.Session, func()) {
	policy := provider.PolicyFromConfig(cfg.Provider)

	embedder, err := embedding.New(&cfg.EmbedLLM, policy)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	model, err := llmservice.NewChatModel(&cfg.ChatLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing chat model")
	}
	llm := llmservice.New(model, cfg.ChatLLM.Provider, *cfg.ChatLLM.Temperature, policy)

	deps := session.Deps{
		Parser:   parser.New(),
		Embedder: embedder,
		RAG:      rag.NewRAG(llm, embedder, &cfg.RAG),
	}
	cleanup := func() {}
	if cfg.Database.Enabled {
		archive, err := db.OpenArchive(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Error opening transcript archive")
		}
		deps.Recorder = archive
		cleanup = func() {
			if err := archive.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing transcript archive")
			}
		}
	}

	sess, err := session.New(deps, chunking)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating session")
	}
	log.Info().Str("session", sess.ID()).Str("embed_model", cfg.EmbedLLM.Model).Str("chat_model", cfg.ChatLLM.Model).Msg("Session started")
	return sess, cleanup
}

// chunkDocuments prints the chunks the documents would be indexed as,
// without calling any model.
func chunkDocuments(ctx context.Context, chunking chunker.Options, sources []parser.Source) {
	sess, err := session.New(session.Deps{Parser: parser.New()}, chunking)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating session")
	}
	chunks, res, err := sess.Chunk(ctx, sources)
	if err != nil {
		_, msg := session.Describe(err)
		log.Fatal().Err(err).Msg(msg)
	}
	if err := helper.PrettyPrint(os.Stdout, chunks); err != nil {
		log.Fatal().Err(err).Msg("Error printing chunks")
	}
	log.Info().Int("documents", res.Documents).Int("pages", res.Pages).Int("chunks", len(chunks)).Msg("Parsed documents")
}

// redacted hides secrets before the config is logged.
func redacted(cfg config.Config) config.Config {
	if cfg.EmbedLLM.Key != "" {
		cfg.EmbedLLM.Key = "***"
	}
	if cfg.ChatLLM.Key != "" {
		cfg.ChatLLM.Key = "***"
	}
	if cfg.Database.Password != "" {
		cfg.Database.Password = "***"
	}
	return cfg
}
