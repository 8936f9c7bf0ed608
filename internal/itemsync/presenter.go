package itemsync

import (
	"strconv"

	"github.com/gravitas-games/economy/pkg/models"
)

// Severity grades a notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Container names a slot grid the presenter draws.
type Container string

// ContainerInventory is the player's inventory grid.
const ContainerInventory Container = "inventory"

// BankContainer names one bank storage grid.
func BankContainer(storage int) Container {
	return Container("bank:" + strconv.Itoa(storage))
}

// Presenter is told about every state change. The session never asks it
// for decisions beyond a quantity prompt.
type Presenter interface {
	RenderSlot(container Container, index int, stack *models.ItemStack)
	Notify(message string, severity Severity)
	// PromptQuantity asks for a quantity in [1, max]; ok is false when the
	// player cancels.
	PromptQuantity(max int) (n int, ok bool)
}

type nopPresenter struct{}

func (nopPresenter) RenderSlot(Container, int, *models.ItemStack) {}
func (nopPresenter) Notify(string, Severity)                      {}
func (nopPresenter) PromptQuantity(max int) (int, bool)           { return max, true }
