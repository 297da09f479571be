// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package confile

import (
	"strings"
	"testing"

	"github.com/raalkml/build-container/internal/pkg/mount"
	"gotest.tools/v3/assert"
)

func parseText(t *testing.T, text string) (*Plan, error) {
	t.Helper()
	p := &Parser{Dir: "/conf", Home: "/home/alice"}
	return p.ParseReader(strings.NewReader(text), "test")
}

func mounts(plan *Plan) []*mount.Op {
	var ops []*mount.Op
	for _, a := range plan.Actions {
		if a.Mount != nil {
			ops = append(ops, a.Mount)
		}
	}
	return ops
}

func TestParseBind(t *testing.T) {
	plan, err := parseText(t, "from /src\nto /dst\nbind rec,ro\n")
	assert.NilError(t, err)
	ops := mounts(plan)
	assert.Equal(t, len(ops), 1)
	assert.DeepEqual(t, *ops[0], mount.Op{
		Kind:    mount.KindBind,
		Source:  "/src",
		Target:  "/dst",
		Options: "rec,ro",
	})
}

func TestParseBindEitherOrder(t *testing.T) {
	straight, err := parseText(t, "from /src\nto /dst\nbind\n")
	assert.NilError(t, err)
	swapped, err := parseText(t, "to /dst\nfrom /src\nbind\n")
	assert.NilError(t, err)
	assert.DeepEqual(t, *mounts(straight)[0], *mounts(swapped)[0])
}

func TestParseMoveArity(t *testing.T) {
	_, err := parseText(t, "from /src\nmove\n")
	assert.ErrorContains(t, err, "'move' expects 'from' and 'to' paths")

	_, err = parseText(t, "from /a\nfrom /b\nbind\n")
	assert.ErrorContains(t, err, "'bind' expects 'from' and 'to' paths")
}

func TestParseCaseInsensitive(t *testing.T) {
	plan, err := parseText(t, "FROM /src\nTo /dst\nBIND\n")
	assert.NilError(t, err)
	assert.Equal(t, len(mounts(plan)), 1)
}

func TestParseCommentsAndBlanks(t *testing.T) {
	plan, err := parseText(t, "# a comment\n\n   \t\n  # indented comment\n")
	assert.NilError(t, err)
	assert.Equal(t, len(plan.Actions), 0)
}

func TestParseUnknownDirective(t *testing.T) {
	_, err := parseText(t, "frobnicate /x\n")
	assert.ErrorContains(t, err, "unknown directive")
}

func TestParseMountWithSource(t *testing.T) {
	plan, err := parseText(t, "from /dev/sr0\nto /mnt\nmount iso9660 ro,loop\n")
	assert.NilError(t, err)
	assert.DeepEqual(t, *mounts(plan)[0], mount.Op{
		Kind:    mount.KindMount,
		Source:  "/dev/sr0",
		Target:  "/mnt",
		FSType:  "iso9660",
		Options: "ro,loop",
	})
}

func TestParseMountWithoutSource(t *testing.T) {
	plan, err := parseText(t, "to /tmp/scratch\nmount tmpfs size=64m\n")
	assert.NilError(t, err)
	op := mounts(plan)[0]
	assert.Equal(t, op.Source, "")
	assert.Equal(t, op.FSType, "tmpfs")
	assert.Equal(t, op.Options, "size=64m")
}

func TestParseMountMissingFSType(t *testing.T) {
	_, err := parseText(t, "to /mnt\nmount\n")
	assert.ErrorContains(t, err, "filesystem type")
}

func TestParseUnionKeepsTextOrder(t *testing.T) {
	plan, err := parseText(t, "from /a\nfrom /b\nfrom /c\nto /m\nunion\n")
	assert.NilError(t, err)
	op := mounts(plan)[0]
	assert.Equal(t, op.Kind, mount.KindUnion)
	assert.DeepEqual(t, op.Lowers, []string{"/a", "/b", "/c"})
	assert.Equal(t, op.Target, "/m")
}

func TestParseUnionArity(t *testing.T) {
	_, err := parseText(t, "to /m\nunion\n")
	assert.ErrorContains(t, err, "'union' expects")

	_, err = parseText(t, "from /a\nto /m\nto /n\nunion\n")
	assert.ErrorContains(t, err, "'union' expects")

	_, err = parseText(t, "from /a\nwork /w\nto /m\nunion\n")
	assert.ErrorContains(t, err, "'union' expects")
}

func TestParseOverlayUpperIsLatestFrom(t *testing.T) {
	plan, err := parseText(t, "work /w\nfrom /lower\nfrom /upper\nto /merged\noverlay\n")
	assert.NilError(t, err)
	assert.DeepEqual(t, *mounts(plan)[0], mount.Op{
		Kind:   mount.KindOverlay,
		Target: "/merged",
		Upper:  "/upper",
		Lowers: []string{"/lower"},
		Work:   "/w",
	})
}

func TestParseOverlayArity(t *testing.T) {
	_, err := parseText(t, "from /a\nfrom /b\nto /m\noverlay\n")
	assert.ErrorContains(t, err, "'overlay' expects")

	_, err = parseText(t, "work /w\nfrom /a\nto /m\noverlay\n")
	assert.ErrorContains(t, err, "'overlay' expects")
}

func TestParsePathResolution(t *testing.T) {
	plan, err := parseText(t, "from sub/dir\nto ~/data\nbind\n")
	assert.NilError(t, err)
	op := mounts(plan)[0]
	assert.Equal(t, op.Source, "/conf/sub/dir")
	assert.Equal(t, op.Target, "/home/alice/data")
}

func TestParseMkdirVariants(t *testing.T) {
	plan, err := parseText(t, "from! /src\nto! /dst\nbind\n")
	assert.NilError(t, err)
	assert.Equal(t, len(plan.Actions), 3)
	assert.Equal(t, plan.Actions[0].Mkdir, "/src")
	assert.Equal(t, plan.Actions[1].Mkdir, "/dst")
	assert.Assert(t, plan.Actions[2].Mount != nil)
}

func TestParseChroot(t *testing.T) {
	plan, err := parseText(t, "chroot /newroot\n")
	assert.NilError(t, err)
	assert.Equal(t, plan.Chroot, "/newroot")
}

func TestParseChrootRelative(t *testing.T) {
	plan, err := parseText(t, "chroot root\n")
	assert.NilError(t, err)
	assert.Equal(t, plan.Chroot, "/conf/root")
}

func TestParseResidueDiscarded(t *testing.T) {
	// unconsumed operands are dropped silently
	plan, err := parseText(t, "from /a\nto /b\n")
	assert.NilError(t, err)
	assert.Equal(t, len(plan.Actions), 0)
}

func TestParseCRLF(t *testing.T) {
	plan, err := parseText(t, "from /src\r\nto /dst\r\nbind ro\r\n")
	assert.NilError(t, err)
	op := mounts(plan)[0]
	assert.Equal(t, op.Source, "/src")
	assert.Equal(t, op.Target, "/dst")
	assert.Equal(t, op.Options, "ro")
}
