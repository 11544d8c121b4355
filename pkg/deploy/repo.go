package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/wentf9/xdeploy/pkg/logger"
)

// Repo 本地部署用代码副本
type Repo struct {
	URL    string
	Branch string
	Dir    string
	Auth   transport.AuthMethod
	// Progress 非空时输出 clone/fetch 进度
	Progress io.Writer
}

// CloneOrUpdate 目录不存在时 clone; 否则 fetch 后切换到跟踪分支并硬重置到 origin/<branch>.
// 部署副本从不在本地修改, 硬重置与 pull --rebase 的结果一致
func (r *Repo) CloneOrUpdate(ctx context.Context) (string, error) {
	if r.URL == "" {
		return "", errors.New("git_registry is not configured in the inventory")
	}
	branch := r.Branch
	if branch == "" {
		branch = "master"
	}
	branchRef := plumbing.NewBranchReferenceName(branch)

	_, err := os.Stat(filepath.Join(r.Dir, ".git"))
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("stat working copy %s: %w", r.Dir, err)
	}
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(r.Dir), 0755); err != nil {
			return "", err
		}
		logger.Logger.Info("cloning repository", "url", r.URL, "dir", r.Dir, "branch", branch)
		repo, err := git.PlainCloneContext(ctx, r.Dir, false, &git.CloneOptions{
			URL:           r.URL,
			Auth:          r.Auth,
			ReferenceName: branchRef,
			SingleBranch:  true,
			Progress:      r.Progress,
		})
		if err != nil {
			return "", fmt.Errorf("git clone %s: %w", r.URL, err)
		}
		head, err := repo.Head()
		if err != nil {
			return "", err
		}
		return head.Hash().String(), nil
	}

	repo, err := git.PlainOpen(r.Dir)
	if err != nil {
		return "", fmt.Errorf("open working copy %s: %w", r.Dir, err)
	}
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		Auth:       r.Auth,
		Progress:   r.Progress,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("git fetch: %w", err)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return "", fmt.Errorf("resolve origin/%s: %w", branch, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	err = wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		err = wt.Checkout(&git.CheckoutOptions{Branch: branchRef, Hash: remoteRef.Hash(), Create: true, Force: true})
	}
	if err != nil {
		return "", fmt.Errorf("git checkout %s: %w", branch, err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return "", fmt.Errorf("git reset origin/%s: %w", branch, err)
	}
	logger.Logger.Info("repository updated", "dir", r.Dir, "branch", branch, "head", remoteRef.Hash().String())
	return remoteRef.Hash().String(), nil
}
