package warning

import (
	"fmt"

	"github.com/samber/lo"
)

// Problem is one kind of issue a participant can report.
type Problem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Problems is the report menu offered to participants.
var Problems = []Problem{
	{ID: "audio", Label: "Problème de son"},
	{ID: "video", Label: "Problème de vidéo"},
	{ID: "screen", Label: "Problème de partage d'écran"},
	{ID: "connection", Label: "Problème de connexion"},
}

// IsKnownProblem reports whether id is in the menu.
func IsKnownProblem(id string) bool {
	return lo.ContainsBy(Problems, func(p Problem) bool { return p.ID == id })
}

// Label returns the display label of id, or id itself for types this client
// does not know.
func Label(id string) string {
	if p, ok := lo.Find(Problems, func(p Problem) bool { return p.ID == id }); ok {
		return p.Label
	}
	return id
}

// CountMessage is the alert headline for count distinct reporters.
func CountMessage(count int) string {
	if count <= 1 {
		return "Un étudiant signale un problème"
	}
	return fmt.Sprintf("%d étudiants signalent un problème", count)
}
