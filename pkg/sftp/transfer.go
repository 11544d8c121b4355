package sftp

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Upload 上传文件或目录. 目录会整体复制到 remotePath 下, 与 rsync -a src dst/ 的布局一致
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, progress ProgressCallback) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat local path failed: %w", err)
	}
	if info.IsDir() {
		return c.uploadDirectory(ctx, localPath, c.JoinPath(remotePath, filepath.Base(localPath)), progress)
	}
	if remoteStat, err := c.sftpClient.Stat(remotePath); err == nil && remoteStat.IsDir() {
		remotePath = c.JoinPath(remotePath, filepath.Base(localPath))
	}
	return c.uploadFile(ctx, localPath, remotePath, info.Size(), info.Mode(), progress)
}

// LocalSize 统计将要上传的字节数, 用于进度条
func LocalSize(localPath string, exclude []string) (int64, error) {
	var total int64
	err := filepath.WalkDir(localPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != localPath && slices.Contains(exclude, d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func (c *Client) uploadFile(ctx context.Context, localPath, remotePath string, size int64, mode os.FileMode, progress ProgressCallback) error {
	srcFile, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := c.sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote %s: %w", remotePath, err)
	}
	defer dstFile.Close()
	_ = c.sftpClient.Chmod(remotePath, mode.Perm())

	// 小文件直接流式传输
	if c.config.ThreadsPerFile <= 1 || size < c.config.ChunkSize {
		return streamTransfer(srcFile, dstFile, progress)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.ThreadsPerFile)
	chunkSize := c.config.ChunkSize

	for offset := int64(0); offset < size; offset += chunkSize {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n := min(chunkSize, size-offset)
			buf := make([]byte, n)
			read, err := srcFile.ReadAt(buf, offset)
			if err != nil && err != io.EOF {
				return fmt.Errorf("read local at %d failed: %w", offset, err)
			}
			if read == 0 {
				return nil
			}
			if _, err := dstFile.WriteAt(buf[:read], offset); err != nil {
				return fmt.Errorf("write remote at %d failed: %w", offset, err)
			}
			if progress != nil {
				progress(read)
			}
			return nil
		})
	}
	return g.Wait()
}

func streamTransfer(r io.Reader, w io.Writer, progress ProgressCallback) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, wErr := w.Write(buf[:n]); wErr != nil {
				return wErr
			}
			if progress != nil {
				progress(n)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (c *Client) uploadDirectory(ctx context.Context, localDir, remoteDir string, progress ProgressCallback) error {
	if err := c.sftpClient.MkdirAll(remoteDir); err != nil {
		return fmt.Errorf("mkdir remote %s: %w", remoteDir, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.ConcurrentFiles)

	err := filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path != localDir && slices.Contains(c.config.Exclude, d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		remoteDest := c.JoinPath(remoteDir, filepath.ToSlash(rel))

		// 目录顺序创建, 文件并发上传
		if d.IsDir() {
			return c.sftpClient.MkdirAll(remoteDest)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		g.Go(func() error {
			return c.uploadFile(ctx, path, remoteDest, info.Size(), info.Mode(), progress)
		})
		return nil
	})
	if err != nil {
		_ = g.Wait()
		return err
	}
	return g.Wait()
}
