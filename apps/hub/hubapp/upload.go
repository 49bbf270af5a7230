package hubapp

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lobinuxsoft/capydeploy/pkg/config"
	"github.com/lobinuxsoft/capydeploy/pkg/protocol"
	"github.com/lobinuxsoft/capydeploy/pkg/transfer"
)

// maxArtworkSize is the maximum allowed local artwork file size. Animated
// WebP files for Steam artwork can run 20-30MB.
const maxArtworkSize = 50 * 1024 * 1024

// UploadGame finds the named game setup and streams it to agentID,
// reporting progress through Events() as protocol.UploadProgressEvent.
// Returns once the transfer is handed off; the transfer itself runs in the
// background.
func (s *Service) UploadGame(ctx context.Context, agentID, setupID string) error {
	client, err := s.client(agentID)
	if err != nil {
		return err
	}

	setups, err := config.GetGameSetups()
	if err != nil {
		return fmt.Errorf("failed to get game setups: %w", err)
	}
	var setup *config.GameSetup
	for i := range setups {
		if setups[i].ID == setupID {
			setup = &setups[i]
			break
		}
	}
	if setup == nil {
		return fmt.Errorf("game setup not found: %s", setupID)
	}

	go s.performUpload(ctx, agentID, client, setup)
	return nil
}

func (s *Service) emitUpload(agentID string, transferred, total int64, currentFile string) {
	pct := 0.0
	if total > 0 {
		pct = float64(transferred) / float64(total) * 100
	}
	s.manager.EmitUpload(agentID, protocol.UploadProgressEvent{
		TransferredBytes: transferred,
		TotalBytes:       total,
		CurrentFile:      currentFile,
		Percentage:       pct,
	})
}

func (s *Service) performUpload(ctx context.Context, agentID string, client uploaderClient, setup *config.GameSetup) {
	s.metrics.uploadsStarted.Inc()
	fail := func(format string, args ...any) {
		s.metrics.uploadsFailed.Inc()
		s.log.Error(fmt.Sprintf(format, args...), "agent", agentID, "setup", setup.Name)
	}

	files, totalSize, err := scanFilesForUpload(setup.LocalPath)
	if err != nil {
		fail("scan files for upload: %v", err)
		return
	}

	uploadConfig := protocol.UploadConfig{
		GameName:      setup.Name,
		InstallPath:   setup.InstallPath,
		Executable:    setup.Executable,
		LaunchOptions: setup.LaunchOptions,
		Tags:          setup.Tags,
	}

	protoFiles := make([]protocol.FileEntry, len(files))
	for i, f := range files {
		protoFiles[i] = protocol.FileEntry{RelativePath: f.RelativePath, Size: f.Size}
	}

	initResp, err := client.InitUpload(ctx, uploadConfig, totalSize, protoFiles)
	if err != nil {
		fail("initialize upload: %v", err)
		return
	}

	uploadID := initResp.UploadID
	chunkSize := initResp.ChunkSize
	if chunkSize == 0 {
		chunkSize = 1024 * 1024
	}

	var uploaded int64
	for _, fileEntry := range files {
		localPath := filepath.Join(setup.LocalPath, fileEntry.RelativePath)

		file, err := os.Open(localPath)
		if err != nil {
			fail("open %s: %v", fileEntry.RelativePath, err)
			client.CancelUpload(ctx, uploadID)
			return
		}

		var offset int64
		if resumeOffset, hasResume := initResp.ResumeFrom[fileEntry.RelativePath]; hasResume {
			offset = resumeOffset
			file.Seek(offset, 0)
			uploaded += offset
		}

		buf := make([]byte, chunkSize)
		for {
			n, readErr := file.Read(buf)
			if n > 0 {
				if err := client.UploadChunk(ctx, uploadID, fileEntry.RelativePath, offset, buf[:n], ""); err != nil {
					file.Close()
					fail("upload chunk of %s: %v", fileEntry.RelativePath, err)
					client.CancelUpload(ctx, uploadID)
					return
				}
				offset += int64(n)
				uploaded += int64(n)
				s.metrics.bytesUploaded.Add(float64(n))
				s.emitUpload(agentID, uploaded, totalSize, fileEntry.RelativePath)
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				file.Close()
				fail("read %s: %v", fileEntry.RelativePath, readErr)
				client.CancelUpload(ctx, uploadID)
				return
			}
		}
		file.Close()
	}

	s.sendLocalArtwork(ctx, agentID, client, setup, 0)

	shortcutCfg := &protocol.ShortcutConfig{
		Name:          setup.Name,
		Exe:           setup.Executable,
		LaunchOptions: setup.LaunchOptions,
		Tags:          parseTags(setup.Tags),
		Artwork:       buildRemoteArtworkConfig(setup),
	}

	completeResp, err := client.CompleteUpload(ctx, uploadID, true, shortcutCfg)
	if err != nil {
		fail("complete upload: %v", err)
		return
	}
	if !completeResp.Success {
		fail("agent reported upload failure: %s", completeResp.Error)
		return
	}

	s.metrics.uploadsCompleted.Inc()
	s.emitUpload(agentID, totalSize, totalSize, "")
}

// uploaderClient is the subset of *wsclient.Client performUpload needs.
type uploaderClient interface {
	InitUpload(ctx context.Context, config protocol.UploadConfig, totalSize int64, files []protocol.FileEntry) (*protocol.InitUploadResponseFull, error)
	UploadChunk(ctx context.Context, uploadID, filePath string, offset int64, data []byte, checksum string) error
	CompleteUpload(ctx context.Context, uploadID string, createShortcut bool, shortcut *protocol.ShortcutConfig) (*protocol.CompleteUploadResponseFull, error)
	CancelUpload(ctx context.Context, uploadID string) error
	SendArtworkImage(ctx context.Context, appID uint32, artworkType, contentType string, data []byte) error
}

func (s *Service) sendLocalArtwork(ctx context.Context, agentID string, client uploaderClient, setup *config.GameSetup, appID uint32) {
	artworkFields := map[string]string{
		"grid":   setup.GridPortrait,
		"banner": setup.GridLandscape,
		"hero":   setup.HeroImage,
		"logo":   setup.LogoImage,
		"icon":   setup.IconImage,
	}

	for artType, path := range artworkFields {
		if !strings.HasPrefix(path, "file://") {
			continue
		}
		localPath := strings.TrimPrefix(path, "file://")

		data, err := os.ReadFile(localPath)
		if err != nil {
			s.log.Warn("failed to read local artwork", "path", localPath, "error", err)
			continue
		}
		contentType := detectContentType(localPath)
		if contentType == "" {
			s.log.Warn("unknown content type for artwork", "path", localPath)
			continue
		}
		if err := client.SendArtworkImage(ctx, appID, artType, contentType, data); err != nil {
			s.log.Warn("failed to send artwork", "type", artType, "error", err)
		}
	}
}

// buildRemoteArtworkConfig returns an ArtworkConfig with only remote (http)
// URLs. Local file:// paths were already sent as binary WS messages.
func buildRemoteArtworkConfig(setup *config.GameSetup) *protocol.ArtworkConfig {
	cfg := &protocol.ArtworkConfig{}
	hasAny := false
	set := func(dst *string, src string) {
		if strings.HasPrefix(src, "http") {
			*dst = src
			hasAny = true
		}
	}
	set(&cfg.Grid, setup.GridPortrait)
	set(&cfg.Banner, setup.GridLandscape)
	set(&cfg.Hero, setup.HeroImage)
	set(&cfg.Logo, setup.LogoImage)
	set(&cfg.Icon, setup.IconImage)
	if !hasAny {
		return nil
	}
	return cfg
}

func scanFilesForUpload(rootPath string) ([]transfer.FileEntry, int64, error) {
	var files []transfer.FileEntry
	var totalSize int64

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		relPath = strings.ReplaceAll(relPath, "\\", "/")

		files = append(files, transfer.FileEntry{RelativePath: relPath, Size: info.Size()})
		totalSize += info.Size()
		return nil
	})
	return files, totalSize, err
}

func parseTags(tagsStr string) []string {
	if tagsStr == "" {
		return nil
	}
	parts := strings.Split(tagsStr, ",")
	result := make([]string, 0, len(parts))
	for _, tag := range parts {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			result = append(result, tag)
		}
	}
	return result
}

// ArtworkPreview is a data-URI rendering of a local artwork file, suitable
// for an operator-facing preview.
type ArtworkPreview struct {
	Path        string
	DataURI     string
	ContentType string
	Size        int64
}

// GetArtworkPreview reads and validates a local artwork file, returning a
// base64 data URI for preview.
func GetArtworkPreview(path string) (*ArtworkPreview, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > maxArtworkSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxArtworkSize)
	}

	contentType := detectContentType(path)
	if contentType == "" {
		return nil, fmt.Errorf("unsupported image format: %s", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return &ArtworkPreview{
		Path:        path,
		DataURI:     fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)),
		ContentType: contentType,
		Size:        info.Size(),
	}, nil
}

func detectContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		ct := mime.TypeByExtension(ext)
		if strings.HasPrefix(ct, "image/") {
			return ct
		}
		return ""
	}
}

// GetInstalledGames lists the Steam shortcuts that the given connected
// Agent reports for its first Steam user.
func (s *Service) GetInstalledGames(ctx context.Context, agentID string) ([]InstalledGame, error) {
	client, err := s.client(agentID)
	if err != nil {
		return nil, err
	}

	users, err := client.GetSteamUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("get steam users: %w", err)
	}
	if len(users) == 0 {
		return []InstalledGame{}, nil
	}

	userID, err := strconv.ParseUint(users[0].ID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid steam user id %q: %w", users[0].ID, err)
	}

	shortcuts, err := client.ListShortcuts(ctx, uint32(userID))
	if err != nil {
		return nil, fmt.Errorf("list shortcuts: %w", err)
	}

	games := make([]InstalledGame, 0, len(shortcuts))
	for _, sc := range shortcuts {
		games = append(games, InstalledGame{Name: sc.Name, Path: sc.StartDir, AppID: sc.AppID})
	}
	return games, nil
}

// InstalledGame is a Steam shortcut reported by a connected Agent.
type InstalledGame struct {
	Name  string
	Path  string
	AppID uint32
}

// DeleteGame removes a previously uploaded game from the connected Agent.
// The Agent handles user detection, file deletion, and Steam restart.
func (s *Service) DeleteGame(ctx context.Context, agentID string, appID uint32) error {
	client, err := s.client(agentID)
	if err != nil {
		return err
	}
	resp, err := client.DeleteGame(ctx, appID)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	s.manager.EmitOperation(agentID, protocol.OperationEvent{
		Type:     "delete",
		Status:   "complete",
		GameName: resp.GameName,
		Progress: 100,
	})
	return nil
}
