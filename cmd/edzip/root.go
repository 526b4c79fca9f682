package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edzip/edzip"
	edziphttp "github.com/edzip/edzip/http"
)

var cfgFile string

// NewRootCommand creates the edzip root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edzip",
		Short: "Index and read ZIP archives without loading their central directory",
		Long: `edzip builds an external directory over a ZIP archive in a single
forward pass and then serves random access reads against it, so archives
with millions of entries can be read without parsing the central
directory into memory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cobra.OnInitialize(initConfig)
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.edzip.yaml)")
	cmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log-level", cmd.PersistentFlags().Lookup("log-level"))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".edzip")
		}
	}
	viper.SetEnvPrefix("EDZIP")
	viper.AutomaticEnv()

	// A missing config file is fine; only a malformed one is worth noting.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "warning: could not read config:", err)
		}
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(viper.GetString("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// defaultIndexPath derives the index filename for an archive path or URL.
func defaultIndexPath(archive string) string {
	if isURL(archive) {
		return path.Base(archive) + ".edzip.sqlite3"
	}
	return archive + ".edzip.sqlite3"
}

// openArchiveStream opens the archive for a sequential front-to-back read.
func openArchiveStream(archive string) (io.ReadCloser, error) {
	if !isURL(archive) {
		return os.Open(archive)
	}
	resp, err := http.Get(archive)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", archive, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %s", archive, resp.Status)
	}
	return resp.Body, nil
}

// openByteSource opens the archive for random access reads.
func openByteSource(archive string) (edzip.ByteSource, io.Closer, error) {
	if isURL(archive) {
		src, err := edziphttp.NewSource(archive)
		if err != nil {
			return nil, nil, err
		}
		return src, nopCloser{}, nil
	}
	src, err := edzip.OpenFile(archive)
	if err != nil {
		return nil, nil, err
	}
	return src, src, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
