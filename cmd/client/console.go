package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gravitas-games/economy/internal/inventory"
	"github.com/gravitas-games/economy/internal/itemsync"
	"github.com/gravitas-games/economy/pkg/models"
)

var errQuit = errors.New("quit")

// reportedError marks a failure the session has already shown through the
// presenter.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err}
}

// consolePresenter prints notifications as lines of text. Slot grids are
// printed on demand by the inv and bank commands. Quantity prompts are never
// interactive; a command without an amount takes everything.
type consolePresenter struct {
	out io.Writer
}

func (p consolePresenter) RenderSlot(itemsync.Container, int, *models.ItemStack) {}

func (p consolePresenter) Notify(message string, severity itemsync.Severity) {
	if severity == itemsync.SeverityInfo {
		fmt.Fprintln(p.out, message)
		return
	}
	fmt.Fprintf(p.out, "%s: %s\n", severity, message)
}

func (p consolePresenter) PromptQuantity(max int) (int, bool) { return max, true }

type command struct {
	usage string
	min   int
	run   func(s *itemsync.Session, args []string, out io.Writer) error
}

// shell parses console lines and runs them on the session loop.
type shell struct {
	loop     *itemsync.Loop
	out      io.Writer
	commands map[string]command
}

func newShell(loop *itemsync.Loop, out io.Writer) *shell {
	sh := &shell{loop: loop, out: out}
	sh.commands = map[string]command{
		"inv":      {usage: "inv", run: printInventory},
		"bank":     {usage: "bank", run: printBank},
		"shops":    {usage: "shops", run: printShops},
		"floor":    {usage: "floor", run: printFloor},
		"move":     {usage: "move <x> <y>", min: 2, run: move},
		"drop":     {usage: "drop <slot> [qty]", min: 1, run: drop},
		"pickup":   {usage: "pickup <floor-id>", min: 1, run: pickup},
		"buy":      {usage: "buy <shop> <item> [qty]", min: 2, run: buy},
		"sell":     {usage: "sell <shop> <slot> [qty]", min: 2, run: sell},
		"deposit":  {usage: "deposit <slot> [qty] [tab]", min: 1, run: deposit},
		"withdraw": {usage: "withdraw <storage> <slot> [qty] [note]", min: 2, run: withdraw},
		"swap":     {usage: "swap <a> <b>", min: 2, run: swap},
		"combine":  {usage: "combine <a> <b>", min: 2, run: combine},
		"use":      {usage: "use <slot>", min: 1, run: use},
		"tab":      {usage: "tab add <name> | tab rm <storage> | tab mv <storage> <slot> <target>", min: 2, run: tab},
		"status":   {usage: "status", run: status},
	}
	return sh
}

// Exec runs one console line. It returns errQuit for "quit".
func (sh *shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "quit", "exit":
		return errQuit
	case "help":
		sh.help()
		return nil
	}
	cmd, ok := sh.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", name)
	}
	if len(args) < cmd.min {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return sh.loop.Do(ctx, func(s *itemsync.Session) error {
		return cmd.run(s, args, sh.out)
	})
}

func (sh *shell) help() {
	names := []string{"inv", "bank", "shops", "floor", "status", "move", "drop", "pickup",
		"buy", "sell", "deposit", "withdraw", "swap", "combine", "use", "tab"}
	for _, n := range names {
		fmt.Fprintf(sh.out, "  %s\n", sh.commands[n].usage)
	}
	fmt.Fprintln(sh.out, "  quit")
}

func ints(args ...string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", itemsync.ErrInvalidArgs, a)
		}
		out[i] = n
	}
	return out, nil
}

// optional returns args[i] as a number, or def when absent.
func optional(args []string, i, def int) (int, error) {
	if i >= len(args) {
		return def, nil
	}
	n, err := ints(args[i])
	if err != nil {
		return 0, err
	}
	return n[0], nil
}

func report(out io.Writer, res itemsync.Result) {
	if res == itemsync.Pending {
		fmt.Fprintln(out, "(waiting for the server)")
	}
}

func printInventory(s *itemsync.Session, _ []string, out io.Writer) error {
	empty := 0
	for i, st := range s.Inventory.Slots() {
		if st == nil {
			empty++
			continue
		}
		fmt.Fprintf(out, "  %2d  %s\n", i, st)
	}
	for slot, st := range s.Inventory.Equipment() {
		fmt.Fprintf(out, "  %s: %s\n", slot, st)
	}
	fmt.Fprintf(out, "  %d free slots\n", empty)
	return nil
}

func printBank(s *itemsync.Session, _ []string, out io.Writer) error {
	for si, storage := range s.Bank.Storages() {
		fmt.Fprintf(out, "  storage %d (%s)\n", si, storage.Name)
		for i, st := range storage.Slots {
			if st != nil {
				fmt.Fprintf(out, "    %3d  %s\n", i, st)
			}
		}
	}
	return nil
}

func printShops(s *itemsync.Session, _ []string, out io.Writer) error {
	for _, id := range s.Shops.Shops() {
		st, _ := s.Shops.Shop(id)
		fmt.Fprintf(out, "  %s (%s)", id, st.Definition.Type)
		if st.Definition.Type.Metered() {
			fmt.Fprintf(out, " funds %d", st.Currency())
		}
		fmt.Fprintln(out)
		for _, item := range sortedKeys(st.Stock) {
			if item == st.Definition.CurrencyID() {
				continue
			}
			line := st.Stock[item]
			price, err := s.Shops.BuyPrice(id, item, 1)
			if err != nil {
				fmt.Fprintf(out, "    %-16s %d/%d\n", item, line.Quantity, line.MaxQuantity)
				continue
			}
			fmt.Fprintf(out, "    %-16s %d/%d  %d each\n", item, line.Quantity, line.MaxQuantity, price)
		}
	}
	return nil
}

func printFloor(s *itemsync.Session, _ []string, out io.Writer) error {
	items := s.Floor.All()
	if len(items) == 0 {
		fmt.Fprintln(out, "  nothing on the floor")
	}
	for _, it := range items {
		fmt.Fprintf(out, "  %s  %s at (%d,%d)\n", it.ID, it.Item, it.X, it.Y)
	}
	return nil
}

func status(s *itemsync.Session, _ []string, out io.Writer) error {
	mode := "offline"
	if s.Connected() {
		mode = "connected"
	}
	fmt.Fprintf(out, "  %s at (%d,%d), %s, %d pending\n", s.PlayerID, s.Position.X, s.Position.Y, mode, s.PendingRequests())
	return nil
}

func move(s *itemsync.Session, args []string, _ io.Writer) error {
	xy, err := ints(args[0], args[1])
	if err != nil {
		return err
	}
	s.Move(xy[0], xy[1])
	return nil
}

func drop(s *itemsync.Session, args []string, out io.Writer) error {
	slot, err := optional(args, 0, 0)
	if err != nil {
		return err
	}
	qty, err := optional(args, 1, 0)
	if err != nil {
		return err
	}
	res, err := s.Drop(slot, qty)
	report(out, res)
	return reported(err)
}

func pickup(s *itemsync.Session, args []string, out io.Writer) error {
	res, err := s.Pickup(args[0])
	report(out, res)
	return reported(err)
}

func buy(s *itemsync.Session, args []string, out io.Writer) error {
	qty, err := optional(args, 2, 1)
	if err != nil {
		return err
	}
	res, err := s.Buy(args[0], args[1], qty)
	report(out, res)
	return reported(err)
}

func sell(s *itemsync.Session, args []string, out io.Writer) error {
	slot, err := optional(args, 1, 0)
	if err != nil {
		return err
	}
	qty, err := optional(args, 2, 0)
	if err != nil {
		return err
	}
	res, err := s.Sell(args[0], slot, qty)
	report(out, res)
	return reported(err)
}

func deposit(s *itemsync.Session, args []string, out io.Writer) error {
	slot, err := optional(args, 0, 0)
	if err != nil {
		return err
	}
	qty, err := optional(args, 1, 0)
	if err != nil {
		return err
	}
	tab, err := optional(args, 2, inventory.AnyStorage)
	if err != nil {
		return err
	}
	res, err := s.Deposit(slot, qty, tab)
	report(out, res)
	return reported(err)
}

func withdraw(s *itemsync.Session, args []string, out io.Writer) error {
	nums, err := ints(args[0], args[1])
	if err != nil {
		return err
	}
	qty, err := optional(args, 2, 0)
	if err != nil {
		return err
	}
	asNote := len(args) > 3 && args[3] == "note"
	res, err := s.Withdraw(nums[0], nums[1], qty, asNote)
	report(out, res)
	return reported(err)
}

func swap(s *itemsync.Session, args []string, _ io.Writer) error {
	ab, err := ints(args[0], args[1])
	if err != nil {
		return err
	}
	return reported(s.Swap(ab[0], ab[1]))
}

func combine(s *itemsync.Session, args []string, _ io.Writer) error {
	ab, err := ints(args[0], args[1])
	if err != nil {
		return err
	}
	return reported(s.Combine(ab[0], ab[1]))
}

func use(s *itemsync.Session, args []string, _ io.Writer) error {
	slot, err := optional(args, 0, 0)
	if err != nil {
		return err
	}
	return reported(s.Use(slot))
}

// tab manages bank tabs. Tabs are local organisation and are not sent to
// the authority.
func tab(s *itemsync.Session, args []string, out io.Writer) error {
	switch args[0] {
	case "add":
		i, err := s.Bank.AddTab(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  created tab %d\n", i)
		return nil
	case "rm":
		n, err := ints(args[1])
		if err != nil {
			return err
		}
		return s.Bank.RemoveTab(n[0])
	case "mv":
		if len(args) < 4 {
			return fmt.Errorf("%w: tab mv <storage> <slot> <target>", itemsync.ErrInvalidArgs)
		}
		n, err := ints(args[1], args[2], args[3])
		if err != nil {
			return err
		}
		st, ok := s.Bank.Slot(n[0], n[1])
		if !ok {
			return inventory.ErrEmptySlot
		}
		return s.Bank.MoveToTab(n[0], n[1], st.Quantity, n[2])
	}
	return fmt.Errorf("%w: unknown tab action %q", itemsync.ErrInvalidArgs, args[0])
}

func sortedKeys(m models.ShopStock) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
