package datasource

import (
	"bytes"
	"context"
	"os"
	"sync"

	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"

	gferrors "github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/common/validation"
)

// FileConfig configures a FileSource.
type FileConfig struct {
	// Path is the rule document to read.
	Path string

	// Refresh is a cron spec, with an optional seconds field, for
	// re-reading Path. Descriptors such as "@every 10s" are accepted.
	// Empty disables refreshing.
	Refresh string

	// Logger receives refresh failures. If nil, the standard logrus logger
	// is used.
	Logger logger.FieldLogger
}

// FileSource loads flow rules from a YAML or JSON file, optionally
// re-reading it on a cron schedule. A document that fails to read or parse
// leaves the current rules in place.
type FileSource struct {
	cfg    FileConfig
	loader RuleLoader
	log    logger.FieldLogger

	mu   sync.Mutex
	last []byte
	cron *cron.Cron
}

func newCronParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// NewFileSource creates a source that feeds loader from cfg.Path.
func NewFileSource(loader RuleLoader, cfg FileConfig) (*FileSource, error) {
	if loader == nil {
		return nil, gferrors.NewValidationError("datasource", "loader", nil, "cannot be nil")
	}
	if err := validation.NotEmpty("datasource", "path", cfg.Path); err != nil {
		return nil, err
	}
	if cfg.Refresh != "" {
		if _, err := newCronParser().Parse(cfg.Refresh); err != nil {
			return nil, gferrors.NewValidationError("datasource", "refresh", cfg.Refresh, err.Error()).
				WithHint(`use a cron spec such as "*/10 * * * * *" or "@every 10s"`)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.StandardLogger()
	}
	return &FileSource{
		cfg:    cfg,
		loader: loader,
		log:    cfg.Logger.WithField("path", cfg.Path),
	}, nil
}

// Load reads the file and hands its rules to the loader. It returns false
// without loading when the file has not changed since the last
// successful read.
func (s *FileSource) Load() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return false, gferrors.NewOperationError("datasource", "read", err).WithContext(s.cfg.Path)
	}
	if s.last != nil && bytes.Equal(data, s.last) {
		return false, nil
	}
	rules, err := ParseRules(data)
	if err != nil {
		return false, gferrors.NewOperationError("datasource", "parse", err).WithContext(s.cfg.Path)
	}
	s.last = data
	return s.loader.LoadRules(rules)
}

// Start loads the file once and, when Refresh is set, schedules reloads.
// A read or parse failure of the initial load is returned. Invalid rules
// in the document are not treated as a failure.
func (s *FileSource) Start() error {
	if _, err := s.Load(); isSourceFailure(err) {
		return err
	}
	if s.cfg.Refresh == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New(
		cron.WithParser(newCronParser()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(s.cfg.Refresh, s.refresh); err != nil {
		return gferrors.NewOperationError("datasource", "schedule", err).WithContext(s.cfg.Refresh)
	}
	c.Start()
	s.cron = c
	return nil
}

func (s *FileSource) refresh() {
	updated, err := s.Load()
	if err != nil {
		s.log.WithError(err).Error("failed to refresh flow rules")
		return
	}
	if updated {
		s.log.Info("flow rules refreshed from file")
	}
}

// Stop cancels scheduled reloads. The returned context is done once a
// running reload has finished.
func (s *FileSource) Stop() context.Context {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return c.Stop()
}
