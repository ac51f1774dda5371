// Package menu is the host-owned affordance state of the toolbar menu.
package menu

import (
	"encoding/json"
	"fmt"

	"github.com/jeanpaulrichter/phasorviz/directive"
)

// Affordance is the enabled state of a toggleable command.
type Affordance int

const (
	Disabled Affordance = iota
	Enabled
)

func (a Affordance) String() string {
	if a == Enabled {
		return "enabled"
	}
	return "disabled"
}

// Renderer shows the menu. menuJSON is an array of Item.
type Renderer interface {
	UpdateMenu(menuJSON string)
}

// Item is one rendered menu entry. A Title of "-" is a separator.
type Item struct {
	Title   string `json:"title"`
	ID      int    `json:"id"`
	Enabled bool   `json:"enabled"`
	Icon    string `json:"icon,omitempty"`
}

// State is a snapshot of the affordances.
type State struct {
	Edit   Affordance
	Delete Affordance
	Locked bool
}

// Menu holds the affordance state. It is owned by the UI goroutine: all
// methods must be called there.
type Menu struct {
	render Renderer
	edit   Affordance
	del    Affordance
	locked bool
}

// New builds the menu with edit and delete disabled and renders it once. A
// fresh surface starts locked; a rebuilt menu keeps the lock the content was
// last told about.
func New(r Renderer, locked bool) *Menu {
	m := &Menu{
		render: r,
		edit:   Disabled,
		del:    Disabled,
		locked: locked,
	}
	m.update()
	return m
}

// ApplyEditing moves edit and delete together.
func (m *Menu) ApplyEditing(enabled bool) {
	next := Disabled
	if enabled {
		next = Enabled
	}
	if m.edit == next && m.del == next {
		return
	}
	m.edit, m.del = next, next
	m.update()
}

// ToggleLock flips the lock and returns the new value.
func (m *Menu) ToggleLock() bool {
	m.locked = !m.locked
	m.update()
	return m.locked
}

// Render shows the current state again, e.g. after the page was replaced.
func (m *Menu) Render() { m.update() }

// State returns the current affordances.
func (m *Menu) State() State {
	return State{Edit: m.edit, Delete: m.del, Locked: m.locked}
}

// Items returns the menu entries in display order.
func (m *Menu) Items() []Item {
	lockTitle, lockIcon := "Unlock", "locked"
	if !m.locked {
		lockTitle, lockIcon = "Lock", "unlocked"
	}
	editIcon, delIcon := "edit_disabled", "delete_disabled"
	if m.edit == Enabled {
		editIcon = "edit"
	}
	if m.del == Enabled {
		delIcon = "delete"
	}

	return []Item{
		{Title: lockTitle, ID: int(ActionLock), Enabled: true, Icon: lockIcon},
		{Title: "Add", ID: int(ActionAdd), Enabled: true, Icon: "add"},
		{Title: "Edit", ID: int(ActionEdit), Enabled: m.edit == Enabled, Icon: editIcon},
		{Title: "Delete", ID: int(ActionDelete), Enabled: m.del == Enabled, Icon: delIcon},
		{Title: "-"},
		{Title: "Reset", ID: int(ActionReset), Enabled: true},
		{Title: "Load JSON...", ID: int(ActionLoadJSON), Enabled: true},
		{Title: "Save PNG...", ID: int(ActionSavePNG), Enabled: true},
		{Title: "Save SVG...", ID: int(ActionSaveSVG), Enabled: true},
		{Title: "Save JSON...", ID: int(ActionSaveJSON), Enabled: true},
		{Title: "Upload...", ID: int(ActionUpload), Enabled: true},
		{Title: "Download...", ID: int(ActionDownload), Enabled: true},
		{Title: "-"},
		{Title: "Settings...", ID: int(ActionSettings), Enabled: true},
		{Title: "About", ID: int(ActionAbout), Enabled: true},
	}
}

func (m *Menu) update() {
	if m.render == nil {
		return
	}
	data, err := json.Marshal(m.Items())
	if err != nil {
		return
	}
	m.render.UpdateMenu(string(data))
}

// Action identifies a menu entry.
type Action int

const (
	ActionLock Action = iota + 1
	ActionAdd
	ActionEdit
	ActionDelete
	ActionReset
	ActionAbout
	ActionSettings
	ActionSavePNG
	ActionSaveSVG
	ActionSaveJSON
	ActionUpload
	ActionDownload
	ActionLoadJSON
)

var actionNames = map[Action]string{
	ActionLock:     "lock",
	ActionAdd:      "add",
	ActionEdit:     "edit",
	ActionDelete:   "delete",
	ActionReset:    "reset",
	ActionAbout:    "about",
	ActionSettings: "settings",
	ActionSavePNG:  "save-png",
	ActionSaveSVG:  "save-svg",
	ActionSaveJSON: "save-json",
	ActionUpload:   "upload",
	ActionDownload: "download",
	ActionLoadJSON: "load-json",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction resolves an action by name, as used on the command line.
func ParseAction(name string) (Action, error) {
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown menu action %q", name)
}

// Names lists all action names.
func Names() []string {
	names := make([]string, 0, len(actionNames))
	for a := ActionLock; a <= ActionLoadJSON; a++ {
		names = append(names, actionNames[a])
	}
	return names
}

// Directive returns the directive an action translates to. Lock, reset and
// load need host interaction first and report false.
func (a Action) Directive() (directive.Directive, bool) {
	var (
		d   directive.Directive
		err error
	)
	switch a {
	case ActionAdd:
		d, err = directive.Command(directive.KindAdd)
	case ActionEdit:
		d, err = directive.Command(directive.KindEdit)
	case ActionDelete:
		d, err = directive.Command(directive.KindDelete)
	case ActionAbout:
		d, err = directive.Command(directive.KindInfo)
	case ActionSettings:
		d, err = directive.Command(directive.KindSettings)
	case ActionUpload:
		d, err = directive.Command(directive.KindUpload)
	case ActionDownload:
		d, err = directive.Command(directive.KindDownloadDlg)
	case ActionSavePNG:
		d, err = directive.Save(directive.FormatPNG)
	case ActionSaveSVG:
		d, err = directive.Save(directive.FormatSVG)
	case ActionSaveJSON:
		d, err = directive.Save(directive.FormatJSON)
	default:
		return directive.Directive{}, false
	}
	return d, err == nil
}
