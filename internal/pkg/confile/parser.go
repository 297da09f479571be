// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package confile

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/raalkml/build-container/internal/pkg/mount"
	"github.com/raalkml/build-container/internal/pkg/util/paths"
	"github.com/raalkml/build-container/pkg/sylog"
)

// tag classifies an operand stack entry.
type tag int

const (
	tagFrom tag = iota
	tagTo
	tagWork
)

func (t tag) String() string {
	switch t {
	case tagFrom:
		return "from"
	case tagTo:
		return "to"
	case tagWork:
		return "work"
	}
	return "???"
}

type entry struct {
	tag  tag
	path string
}

// Action is one step of an executable mount plan: either a directory
// creation or a mount directive.
type Action struct {
	Mkdir string    `json:"mkdir,omitempty"`
	Mount *mount.Op `json:"mount,omitempty"`
}

// Plan is the parsed form of a container configuration.
type Plan struct {
	Actions []Action `json:"actions,omitempty"`
	// Chroot is the pending chroot target, empty when the
	// configuration did not ask for one.
	Chroot string `json:"chroot,omitempty"`
}

// Execute runs the plan against the executor, stopping at the first
// failing action. The chroot itself is the caller's business (it has
// to happen after the plan and before the privilege drop), but check
// mode reports it here so the plan output is complete.
func (p *Plan) Execute(e *mount.Executor) error {
	for i := range p.Actions {
		a := &p.Actions[i]
		var err error
		switch {
		case a.Mkdir != "":
			err = e.Mkdir(a.Mkdir)
		case a.Mount != nil:
			err = e.Mount(a.Mount)
		}
		if err != nil {
			return err
		}
	}
	if p.Chroot != "" && e.CheckMode {
		fmt.Fprintf(e.Out, "# chroot '%s'\n", p.Chroot)
	}
	return nil
}

// Parser turns the line-oriented container configuration language into
// a Plan. Paths are resolved while parsing: absolute paths pass
// through, "~" refers to the home directory of the target user, and
// anything else is relative to the configuration directory.
type Parser struct {
	// Dir is the configuration directory for relative paths.
	Dir string
	// Home is the home directory substituted for a leading "~".
	Home string

	stack []entry
	plan  Plan
}

// Parse consumes the configuration from f using its directory for
// relative paths.
func (p *Parser) Parse(f *File) (*Plan, error) {
	p.Dir = f.Dir
	return p.parse(f, f.Name)
}

// ParseReader consumes a configuration from an arbitrary reader, for
// callers that already hold the text.
func (p *Parser) ParseReader(r io.Reader, name string) (*Plan, error) {
	return p.parse(r, name)
}

func (p *Parser) parse(r io.Reader, name string) (*Plan, error) {
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		if err := p.line(scanner.Text()); err != nil {
			return nil, fmt.Errorf("%s:%d: %s", name, lineno, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %s", name, err)
	}
	if n := len(p.stack); n > 0 {
		// unconsumed operands are discarded on teardown
		sylog.Debugf("%d unconsumed path operand(s) at end of %s", n, name)
		p.stack = nil
	}
	return &p.plan, nil
}

func (p *Parser) push(t tag, path string, create bool) {
	resolved := paths.Resolve(p.Dir, path, p.Home)
	if create {
		p.plan.Actions = append(p.plan.Actions, Action{Mkdir: resolved})
	}
	p.stack = append(p.stack, entry{tag: t, path: resolved})
}

func (p *Parser) pop() (entry, bool) {
	if len(p.stack) == 0 {
		return entry{}, false
	}
	e := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return e, true
}

func (p *Parser) emit(op *mount.Op) {
	p.plan.Actions = append(p.plan.Actions, Action{Mount: op})
}

func (p *Parser) line(raw string) error {
	arg := strings.TrimLeft(raw, " \t\r")
	arg = strings.TrimRight(arg, "\r\n")
	if arg == "" || arg[0] == '#' {
		return nil
	}

	keyword := arg
	rest := ""
	if i := strings.IndexAny(arg, " \t\r"); i >= 0 {
		keyword, rest = arg[:i], strings.TrimLeft(arg[i:], " \t\r")
	}

	switch strings.ToLower(keyword) {
	case "from", "from!":
		p.push(tagFrom, rest, strings.HasSuffix(keyword, "!"))
	case "to", "to!":
		p.push(tagTo, rest, strings.HasSuffix(keyword, "!"))
	case "work", "work!":
		p.push(tagWork, rest, strings.HasSuffix(keyword, "!"))
	case "bind":
		return p.pair(mount.KindBind, rest)
	case "move":
		return p.pair(mount.KindMove, rest)
	case "mount":
		return p.mount(rest)
	case "union":
		return p.union(rest)
	case "overlay":
		return p.overlay(rest)
	case "chroot":
		p.plan.Chroot = paths.Resolve(p.Dir, rest, p.Home)
	default:
		return fmt.Errorf("syntax error: unknown directive %q", keyword)
	}
	return nil
}

// pair consumes a from/to operand pair for bind and move. The two
// entries may have been pushed in either order.
func (p *Parser) pair(kind mount.Kind, options string) error {
	b, okB := p.pop()
	a, okA := p.pop()
	if okA && a.tag != tagFrom {
		a, b = b, a
	}
	if !okA || !okB || a.tag != tagFrom || b.tag != tagTo {
		return fmt.Errorf("'%s' expects 'from' and 'to' paths", kind)
	}
	p.emit(&mount.Op{
		Kind:    kind,
		Source:  a.path,
		Target:  b.path,
		Options: options,
	})
	return nil
}

// mount consumes one to operand and optionally one from operand as the
// mount source. The first word of rest is the filesystem type, the
// remainder its options.
func (p *Parser) mount(rest string) error {
	fstype := rest
	options := ""
	if i := strings.IndexAny(rest, " \t\r"); i >= 0 {
		fstype, options = rest[:i], strings.TrimLeft(rest[i:], " \t\r")
	}
	if fstype == "" {
		return fmt.Errorf("'mount' expects a filesystem type")
	}

	target, ok := p.pop()
	if !ok {
		return fmt.Errorf("'mount' expects a 'to' path")
	}
	source := ""
	if target.tag == tagFrom {
		// pushed in target-first order
		to, ok := p.pop()
		if !ok || to.tag != tagTo {
			return fmt.Errorf("'mount' expects a 'to' path")
		}
		source = target.path
		target = to
	} else if target.tag == tagTo {
		if len(p.stack) > 0 && p.stack[len(p.stack)-1].tag == tagFrom {
			from, _ := p.pop()
			source = from.path
		}
	} else {
		return fmt.Errorf("'mount' expects 'to' and optionally 'from' paths")
	}

	p.emit(&mount.Op{
		Kind:    mount.KindMount,
		Source:  source,
		Target:  target.path,
		FSType:  fstype,
		Options: options,
	})
	return nil
}

// union drains the whole operand stack: at least one from and exactly
// one to. The lower layers keep the order they had in the
// configuration text.
func (p *Parser) union(options string) error {
	var lowers []string
	var target string
	targets := 0
	for {
		e, ok := p.pop()
		if !ok {
			break
		}
		switch e.tag {
		case tagFrom:
			// popping reverses, prepend to restore text order
			lowers = append([]string{e.path}, lowers...)
		case tagTo:
			target = e.path
			targets++
		default:
			return fmt.Errorf("'union' expects exactly one 'to' path and at least one 'from'")
		}
	}
	if targets != 1 || len(lowers) == 0 {
		return fmt.Errorf("'union' expects exactly one 'to' path and at least one 'from'")
	}
	p.emit(&mount.Op{
		Kind:    mount.KindUnion,
		Target:  target,
		Lowers:  lowers,
		Options: options,
	})
	return nil
}

// overlay drains the whole operand stack: exactly two from entries
// (the most recently pushed is the upper layer), one work and one to.
func (p *Parser) overlay(options string) error {
	var froms []string
	var target, work string
	targets, works := 0, 0
	for {
		e, ok := p.pop()
		if !ok {
			break
		}
		switch e.tag {
		case tagFrom:
			froms = append(froms, e.path)
		case tagTo:
			target = e.path
			targets++
		case tagWork:
			work = e.path
			works++
		}
	}
	if targets != 1 || works != 1 || len(froms) != 2 {
		return fmt.Errorf("'overlay' expects one 'to', one 'work' and exactly two 'from' paths")
	}
	p.emit(&mount.Op{
		Kind:    mount.KindOverlay,
		Target:  target,
		Upper:   froms[0],
		Lowers:  []string{froms[1]},
		Work:    work,
		Options: options,
	})
	return nil
}
