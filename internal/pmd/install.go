package pmd

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
)

// DefaultVersion is the PMD release installed when no other is requested.
const DefaultVersion = "7.15.0"

// Installer locates or downloads a PMD distribution and resolves the launcher path.
// A missing or broken installation is a fatal run-level error.
type Installer struct {
	// Version selects the pmd-bin release to install.
	Version string
	// Dir is where downloaded distributions are unpacked. Defaults to "./pmd".
	Dir string
	// SkipDownload reuses an already unpacked distribution of the same version.
	SkipDownload bool
	// Client performs the release downloads. Defaults to http.DefaultClient.
	Client *http.Client

	l core.Logger
}

// NewInstaller constructs an Installer for the given PMD version.
func NewInstaller(version string, dir string, skipDownload bool, logger core.Logger) *Installer {
	if version == "" {
		version = DefaultVersion
	}
	if dir == "" {
		dir = "./pmd"
	}
	if logger == nil {
		logger = core.NewLogger()
	}
	return &Installer{Version: version, Dir: dir, SkipDownload: skipDownload, l: logger}
}

// releaseURLs returns the historical GitHub release URL variants of a pmd-bin zip.
func (inst *Installer) releaseURLs() []string {
	name := fmt.Sprintf("pmd-bin-%s.zip", inst.Version)
	return []string{
		fmt.Sprintf("https://github.com/pmd/pmd/releases/download/pmd_releases%%2F%s/%s", inst.Version, name),
		fmt.Sprintf("https://github.com/pmd/pmd/releases/download/pmd_releases/%s/%s", inst.Version, name),
		fmt.Sprintf("https://github.com/pmd/pmd/releases/download/v%s/%s", inst.Version, name),
	}
}

// Resolve returns the path of a usable PMD launcher. When pmdPath points at an
// existing installation it wins; otherwise the versioned distribution under Dir
// is reused or downloaded.
func (inst *Installer) Resolve(ctx context.Context, pmdPath string) (string, error) {
	home := pmdPath
	if home != "" {
		if _, err := os.Stat(home); err != nil {
			return "", errors.Wrapf(err, "PMD installation not found at %s", home)
		}
	} else {
		home = filepath.Join(inst.Dir, "pmd-bin-"+inst.Version)
		if _, err := os.Stat(home); err != nil {
			if inst.SkipDownload {
				return "", errors.Errorf(
					"no PMD installation at %s and the download is disabled", home)
			}
			if err := inst.download(ctx); err != nil {
				return "", err
			}
		} else if !inst.SkipDownload {
			inst.l.Infof("reusing the PMD installation at %s", home)
		}
	}
	binary := filepath.Join(home, "bin", launcherName())
	if _, err := os.Stat(binary); err != nil {
		return "", errors.Wrapf(err, "PMD launcher not found at %s", binary)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(binary, 0755); err != nil {
			return "", errors.Wrapf(err, "unable to make %s executable", binary)
		}
	}
	return binary, nil
}

func launcherName() string {
	if runtime.GOOS == "windows" {
		return "pmd.bat"
	}
	return "pmd"
}

func (inst *Installer) download(ctx context.Context) error {
	if err := os.MkdirAll(inst.Dir, 0755); err != nil {
		return errors.Wrapf(err, "unable to create %s", inst.Dir)
	}
	client := inst.Client
	if client == nil {
		client = http.DefaultClient
	}
	zipPath := filepath.Join(inst.Dir, fmt.Sprintf("pmd-bin-%s.zip", inst.Version))
	var lastErr error
	for _, url := range inst.releaseURLs() {
		inst.l.Infof("downloading PMD %s from %s", inst.Version, url)
		if lastErr = inst.fetch(ctx, client, url, zipPath); lastErr == nil {
			break
		}
		inst.l.Warnf("download failed: %v", lastErr)
	}
	if lastErr != nil {
		return errors.Wrapf(lastErr, "unable to download PMD %s from any release URL", inst.Version)
	}
	defer os.Remove(zipPath)
	if err := unzip(zipPath, inst.Dir); err != nil {
		return errors.Wrapf(err, "unable to extract %s", zipPath)
	}
	inst.l.Infof("PMD %s installed under %s", inst.Version, inst.Dir)
	return nil
}

func (inst *Installer) fetch(ctx context.Context, client *http.Client, url, target string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected HTTP status %s", response.Status)
	}
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, response.Body)
	return err
}

func unzip(zipPath, targetDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer reader.Close()
	destRoot, err := filepath.Abs(targetDir)
	if err != nil {
		return err
	}
	for _, entry := range reader.File {
		target := filepath.Join(destRoot, entry.Name)
		if target != destRoot && !strings.HasPrefix(target, destRoot+string(os.PathSeparator)) {
			return errors.Errorf("zip entry escapes the target directory: %s", entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, entry.Mode()); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		source, err := entry.Open()
		if err != nil {
			return err
		}
		file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode())
		if err != nil {
			source.Close()
			return err
		}
		_, err = io.Copy(file, source)
		file.Close()
		source.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
