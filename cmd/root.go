package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"fabula/internal/config"
	"fabula/internal/store"
)

var (
	cfgPath string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "fabula",
	Short: "Fabula resumable book generation",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to fabula.yaml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the book database")
}

// LoadConfig resolves the configuration with the --db flag taking
// precedence over both the file and the environment.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}
	return cfg, nil
}

// DiscoverDB finds the database path. An explicit path (flag, env or
// config file) is taken as-is; the default relative name is searched
// upward from the working directory so commands work from anywhere in
// a project tree. With create set, a missing database resolves to the
// configured path instead of failing.
func DiscoverDB(cfg *config.Config, create bool) (string, error) {
	path := cfg.Database

	if path != config.Default().Database || filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil && !create {
			return "", fmt.Errorf("database not found at %s", path)
		}
		return path, nil
	}

	if dir, err := os.Getwd(); err == nil {
		for {
			candidate := filepath.Join(dir, path)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if create {
		return path, nil
	}
	return "", fmt.Errorf("no %s found (set FABULA_DB, use --db, or run from a project directory)", path)
}

// OpenStore discovers and opens the database.
func OpenStore(cfg *config.Config, create bool) (*store.Store, error) {
	path, err := DiscoverDB(cfg, create)
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

// ResolveBook finds a book by numeric id or by title search.
func ResolveBook(s *store.Store, reference string) (*store.Book, error) {
	if id, err := strconv.ParseInt(reference, 10, 64); err == nil {
		book, err := s.GetBook(id)
		if err != nil {
			return nil, err
		}
		if book == nil {
			return nil, fmt.Errorf("no book with id %d", id)
		}
		return book, nil
	}

	matches, err := s.FindBooksByTitle(reference)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no book matches '%s'", reference)
	case 1:
		return &matches[0], nil
	default:
		msg := fmt.Sprintf("ambiguous reference '%s'. %d matches:\n", reference, len(matches))
		for _, m := range matches {
			msg += fmt.Sprintf("  %d %s\n", m.ID, m.Title)
		}
		return nil, fmt.Errorf("%sUse the book id instead.", msg)
	}
}
