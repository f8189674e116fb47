// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package anchor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/merkle"
	"github.com/vexlabs/vex/internal/vexerr"
)

// GitBackend anchors a root as an orphan-branch commit whose message is the
// root's hex encoding with metadata as trailers. It shells out to the git
// binary rather than embedding a pure-Go git library, the same way other
// VCS tooling as subprocesses rather than embedding a pure-Go git library.
type GitBackend struct {
	repoDir string
	branch  string
	clock   clock.Clock
}

// NewGitBackend targets repoDir (must already be a git repository) and
// branch (an orphan branch created on first use if absent).
func NewGitBackend(repoDir, branch string, c clock.Clock) *GitBackend {
	return &GitBackend{repoDir: repoDir, branch: branch, clock: c}
}

func (g *GitBackend) Name() string { return "git" }

func (g *GitBackend) Healthy(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "-C", g.repoDir, "rev-parse", "--is-inside-work-tree")
	return cmd.Run() == nil
}

func (g *GitBackend) Anchor(ctx context.Context, root merkle.Hash, meta Metadata) (Receipt, error) {
	if err := g.ensureBranch(ctx); err != nil {
		return Receipt{}, err
	}

	message := fmt.Sprintf("%s\n\nTenant: %s\nSequence: %d\nTimestamp-Ms: %d\n",
		root.Hex(), meta.Tenant, meta.Sequence, meta.TimestampMs)

	commitArgs := []string{"-C", g.repoDir, "commit", "--allow-empty", "-m", message}
	if out, err := g.run(ctx, commitArgs...); err != nil {
		return Receipt{}, vexerr.Wrap(vexerr.Provider, "anchor.GitBackend.Anchor", "commit: "+out, err)
	}

	out, err := g.run(ctx, "-C", g.repoDir, "rev-parse", "HEAD")
	if err != nil {
		return Receipt{}, vexerr.Wrap(vexerr.Provider, "anchor.GitBackend.Anchor", "rev-parse", err)
	}
	commitID := strings.TrimSpace(out)

	return Receipt{
		Backend:     g.Name(),
		RootHex:     root.Hex(),
		Locator:     commitID,
		Metadata:    meta,
		TimestampMs: g.clock.NowMillis(),
	}, nil
}

func (g *GitBackend) ensureBranch(ctx context.Context) error {
	checkArgs := []string{"-C", g.repoDir, "rev-parse", "--verify", g.branch}
	if _, err := g.run(ctx, checkArgs...); err == nil {
		return nil
	}
	if _, err := g.run(ctx, "-C", g.repoDir, "checkout", "--orphan", g.branch); err != nil {
		return vexerr.Wrap(vexerr.Provider, "anchor.GitBackend.ensureBranch", "create orphan branch", err)
	}
	_, _ = g.run(ctx, "-C", g.repoDir, "rm", "-rf", "--cached", ".")
	return nil
}

func (g *GitBackend) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), err
	}
	return out.String(), nil
}

var _ Backend = (*GitBackend)(nil)
