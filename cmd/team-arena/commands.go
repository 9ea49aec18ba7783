package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"team-arena/internal/arena"
	"team-arena/internal/msgcat"
	"team-arena/internal/obslog"
	"team-arena/internal/quest"
	"team-arena/internal/rewards"
	"team-arena/internal/roster"
	"team-arena/internal/session"
	"team-arena/internal/syncer"
	"team-arena/internal/wheel"
)

// commandLoop reads line commands and drives the arena services. It is the
// headless stand-in for a chat or UI front end.
type commandLoop struct {
	userID      string
	coordinator *arena.Coordinator
	sync        *syncer.Syncer
	tracker     *quest.Tracker
	people      *roster.Service
	wheel       *wheel.Service
	shop        *rewards.Service
	catalog     *msgcat.Catalog
	out         io.Writer
}

func (cl *commandLoop) run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cl.handle(ctx, line)
	}
}

func (cl *commandLoop) handle(ctx context.Context, line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "challenge":
		err = cl.challenge(ctx, args)
	case "accept":
		err = cl.lifecycle(ctx, args, cl.coordinator.Accept)
	case "decline":
		err = cl.lifecycle(ctx, args, cl.coordinator.Decline)
	case "cancel":
		err = cl.lifecycle(ctx, args, cl.coordinator.Cancel)
	case "move":
		err = cl.move(ctx, args)
	case "pending", "active", "history":
		err = cl.buckets(cmd, args)
	case "poke":
		err = cl.poke(ctx, args)
	case "add-option":
		err = cl.addOption(ctx, args)
	case "spin":
		err = cl.spin(ctx)
	case "quests":
		err = cl.quests(ctx)
	case "claim":
		err = cl.claim(ctx, args)
	case "rewards":
		err = cl.rewards(ctx)
	case "buy":
		err = cl.buy(ctx, args)
	case "help":
		cl.printf("commands: challenge accept decline cancel move pending active history poke add-option spin quests claim rewards buy")
	default:
		cl.printf("unknown command %q, try help", cmd)
	}
	if err != nil {
		cl.report(err)
	}
}

// report surfaces catalog notices to the user and everything else to the log.
func (cl *commandLoop) report(err error) {
	if msg, ok := cl.catalog.Notice(err); ok {
		cl.printf("%s", msg)
		return
	}
	obslog.L().Error("command_error", zap.Error(err))
	cl.printf("something went wrong, see the log")
}

func (cl *commandLoop) printf(format string, args ...any) {
	fmt.Fprintf(cl.out, format+"\n", args...)
}

func parseVariant(s string) (session.Variant, error) {
	for _, v := range session.Variants {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown variant %q (duel, chess, tictactoe)", s)
}

func (cl *commandLoop) challenge(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: challenge <variant> <opponent>")
	}
	v, err := parseVariant(args[0])
	if err != nil {
		return err
	}
	sess, err := cl.coordinator.Initiate(ctx, v, cl.userID, args[1])
	if err != nil {
		return err
	}
	cl.printf("challenge %s created, stake %d points", sess.ID, sess.Stake)
	return nil
}

func (cl *commandLoop) lifecycle(ctx context.Context, args []string, op func(context.Context, session.Variant, string, string) (*session.Session, error)) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: <accept|decline|cancel> <variant> <id>")
	}
	v, err := parseVariant(args[0])
	if err != nil {
		return err
	}
	sess, err := op(ctx, v, args[1], cl.userID)
	if err != nil {
		return err
	}
	cl.printf("session %s is now %s", sess.ID, sess.Status)
	return nil
}

func (cl *commandLoop) move(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: move <variant> <id> <move>")
	}
	v, err := parseVariant(args[0])
	if err != nil {
		return err
	}
	sess, err := cl.coordinator.Apply(ctx, v, args[1], cl.userID, args[2])
	if err != nil {
		return err
	}
	if sess.Status == session.StatusCompleted {
		if sess.Winner == "" {
			cl.printf("game over: draw")
		} else {
			cl.printf("game over: %s wins %d points", sess.Winner, sess.Stake)
		}
		return nil
	}
	cl.printf("move applied, %s to play", sess.TurnHolder())
	return nil
}

func (cl *commandLoop) buckets(bucket string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <variant>", bucket)
	}
	v, err := parseVariant(args[0])
	if err != nil {
		return err
	}
	var sessions []*session.Session
	switch bucket {
	case "pending":
		sessions = cl.sync.Pending(v)
	case "active":
		sessions = cl.sync.Active(v)
	case "history":
		sessions = cl.sync.History(v)
	}
	if len(sessions) == 0 {
		cl.printf("no %s %s sessions", bucket, v)
		return nil
	}
	for _, s := range sessions {
		cl.printf("%s  %s vs %s  [%s]", s.ID, s.Challenger, s.Opponent, s.Status)
	}
	return nil
}

func (cl *commandLoop) poke(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: poke <user>")
	}
	if err := cl.people.Poke(ctx, args[0]); err != nil {
		return err
	}
	cl.printf("poked %s", args[0])
	return nil
}

func (cl *commandLoop) addOption(ctx context.Context, args []string) error {
	opt, err := cl.wheel.AddOption(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	cl.printf("idea %s added", opt.ID)
	return nil
}

func (cl *commandLoop) spin(ctx context.Context) error {
	won, err := cl.wheel.Spin(ctx)
	if err != nil {
		return err
	}
	msg, rerr := cl.catalog.Render("wheel.spin_result", map[string]any{"Text": won.Text, "Author": won.Author})
	if rerr != nil {
		msg = fmt.Sprintf("the wheel picked: %s", won.Text)
	}
	cl.printf("%s", msg)
	return nil
}

func (cl *commandLoop) quests(ctx context.Context) error {
	quests, err := cl.tracker.TodayQuests(ctx)
	if err != nil {
		return err
	}
	if len(quests) == 0 {
		cl.printf("no quests today")
		return nil
	}
	for _, uq := range quests {
		state := fmt.Sprintf("%d/%d", uq.Progress, uq.Target)
		if uq.Claimed {
			state = "claimed"
		} else if uq.Completed {
			state = "ready to claim"
		}
		cl.printf("%s  %s  [%s]", uq.ID, uq.Title, state)
	}
	return nil
}

func (cl *commandLoop) claim(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: claim <user-quest-id>")
	}
	uq, err := cl.tracker.ClaimReward(ctx, args[0])
	if err != nil {
		return err
	}
	msg, rerr := cl.catalog.Render("quest.reward_claimed", map[string]any{
		"Points": uq.RewardPoints, "Energy": uq.RewardEnergy,
	})
	if rerr != nil {
		msg = "reward claimed"
	}
	cl.printf("%s", msg)
	return nil
}

func (cl *commandLoop) rewards(ctx context.Context) error {
	catalog, err := cl.shop.List(ctx)
	if err != nil {
		return err
	}
	for _, r := range catalog {
		cl.printf("%s  %s  (%d points)", r.ID, r.Title, r.Cost)
	}
	return nil
}

func (cl *commandLoop) buy(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: buy <reward-id>")
	}
	if err := cl.shop.Buy(ctx, args[0]); err != nil {
		return err
	}
	cl.printf("purchased %s", args[0])
	return nil
}
