package nativedeps

// Phase names one stage of a build step.
type Phase string

const (
	PhaseCheckout    Phase = "checkout"
	PhasePatch       Phase = "patch"
	PhaseConfigure   Phase = "configure"
	PhaseBuild       Phase = "build"
	PhaseTest        Phase = "test"
	PhaseInstall     Phase = "install"
	PhasePostInstall Phase = "post-install"
)

// Choice is a template variable whose value depends on the pass variant.
type Choice struct {
	Release string
	Debug   string
}

// Pick returns the value for v.
func (c Choice) Pick(v Variant) string {
	if v == Debug {
		return c.Debug
	}
	return c.Release
}

// ActionKind selects what an Action does.
type ActionKind int

const (
	ActionExec ActionKind = iota
	ActionCopy
	ActionCopyTree
	ActionRename
)

func (k ActionKind) String() string {
	switch k {
	case ActionExec:
		return "exec"
	case ActionCopy:
		return "copy"
	case ActionCopyTree:
		return "copy-tree"
	case ActionRename:
		return "rename"
	}
	return "unknown"
}

// Action is one templated operation inside a phase: an external command or
// a file operation. Zero Only means the action runs in both variants.
type Action struct {
	Kind ActionKind
	// Line is the command template of an exec action.
	Line string
	// Dir is the working directory template; exec actions default to $BUILD.
	Dir  string
	From string
	To   string
	Only Variant
}

// Exec runs a command template in the step's build directory.
func Exec(line string) Action { return Action{Kind: ActionExec, Line: line} }

// Copy copies one file.
func Copy(from, to string) Action { return Action{Kind: ActionCopy, From: from, To: to} }

// CopyTree copies a directory recursively.
func CopyTree(from, to string) Action { return Action{Kind: ActionCopyTree, From: from, To: to} }

// Rename moves a file or directory.
func Rename(from, to string) Action { return Action{Kind: ActionRename, From: from, To: to} }

// In sets the working directory of an exec action.
func (a Action) In(dir string) Action {
	a.Dir = dir
	return a
}

// DebugOnly restricts the action to the debug pass.
func (a Action) DebugOnly() Action {
	a.Only = Debug
	return a
}

// ReleaseOnly restricts the action to the release pass.
func (a Action) ReleaseOnly() Action {
	a.Only = Release
	return a
}

// appliesTo reports whether the action runs in variant v.
func (a Action) appliesTo(v Variant) bool {
	return a.Only == "" || a.Only == v
}

// Patch is a regex substitution applied to one file of a fresh checkout.
type Patch struct {
	// File is relative to the checkout root.
	File    string
	Pattern string
	Replace string
}

// Step declares how one dependency is configured, built, tested, installed
// and post-processed. Library quirks live here as data.
type Step struct {
	Name string
	// Requires lists dependencies whose distribution directories this step reads.
	Requires []string
	// SourceDir is the build root relative to the checkout, exposed as $SOURCE.
	SourceDir string
	Vars      map[string]Choice
	Patches   []Patch

	Configure   []Action
	Build       []Action
	Test        []Action
	Install     []Action
	PostInstall []Action

	// TestAfterInstall runs the test phase against installed artifacts.
	TestAfterInstall bool
}
