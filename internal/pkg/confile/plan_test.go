// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package confile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/blang/semver/v4"
	"github.com/raalkml/build-container/internal/pkg/mount"
	"github.com/raalkml/build-container/internal/pkg/util/kernel"
	"gotest.tools/v3/assert"
)

// planOutput parses the configuration text and renders the check mode
// plan against a fixed modern kernel.
func planOutput(t *testing.T, text string) string {
	t.Helper()
	p := &Parser{Dir: "/conf", Home: "/home/alice"}
	plan, err := p.ParseReader(strings.NewReader(text), "test")
	assert.NilError(t, err)

	out := &bytes.Buffer{}
	e := &mount.Executor{
		CheckMode: true,
		Out:       out,
		Release:   &kernel.Release{Sysname: "Linux", Version: semver.MustParse("5.15.0")},
	}
	assert.NilError(t, plan.Execute(e))
	return out.String()
}

func TestPlanBind(t *testing.T) {
	got := planOutput(t, "from /src\nto /dst\nbind rec,ro\n")
	assert.Equal(t, got, "# mount /src /dst  0x5001 bind \n")
}

func TestPlanOverlay(t *testing.T) {
	got := planOutput(t, "work /w\nfrom /lower\nfrom /upper\nto /merged\noverlay\n")
	assert.Equal(t, got,
		"# mount overlay /merged overlay 0x0 index=off,xino=off,upperdir=/upper,lowerdir=/lower,workdir=/w\n")
}

func TestPlanUnion(t *testing.T) {
	got := planOutput(t, "from /a\nfrom /b\nfrom /c\nto /m\nunion\n")
	assert.Equal(t, got,
		"# mount union /m overlay 0x0 index=off,xino=off,lowerdir=/a:/b:/c\n")
}

func TestPlanChrootReported(t *testing.T) {
	got := planOutput(t, "from /src\nto /dst\nbind\nchroot /dst\n")
	assert.Equal(t, got,
		"# mount /src /dst  0x1000 bind \n# chroot '/dst'\n")
}

func TestPlanIdempotent(t *testing.T) {
	text := "from /a\nfrom /b\nto /m\nunion\nchroot /m\n"
	assert.Equal(t, planOutput(t, text), planOutput(t, text))
}
