package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"talent-chat/auth"
	"talent-chat/contract"
	"talent-chat/domain"
	"talent-chat/infrastructure/grpc/client"
	grpcserver "talent-chat/infrastructure/grpc/server"
	"talent-chat/services"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

type chatStore interface {
	contract.RoomDirectory
	contract.UserDirectory
	contract.MessageStore
	Close() error
}

// CLI runs operator commands against the chat store.
type CLI struct {
	store    chatStore
	rooms    *services.RoomService
	signer   *auth.Signer
	grpcAddr string
	out      io.Writer
}

func usage(out io.Writer) {
	fmt.Fprintln(out, `usage: chatctl <command> [arguments]

commands:
  rooms [-filter none|teams|techs]
  history <room>
  create-room -name NAME [-kind team|direct-support] [-team ID] [-creator USER]
  delete-room <room>
  team-room -team ID -name TEAM -owner USER [-members a,b]
  support-room <user>
  add-user <room> <user>
  remove-user <room> <user>
  put-user -id USER -name NAME [-roles a,b]
  token <user> [-roles a,b]
  health`)
}

func (c *CLI) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage(c.out)
		return fmt.Errorf("missing command")
	}
	command, rest := args[0], args[1:]
	switch command {
	case "rooms":
		return c.listRooms(ctx, rest)
	case "history":
		return c.history(ctx, rest)
	case "create-room":
		return c.createRoom(ctx, rest)
	case "delete-room":
		if len(rest) != 1 {
			return fmt.Errorf("delete-room needs a room id")
		}
		if err := c.rooms.DeleteRoom(ctx, domain.RoomID(rest[0])); err != nil {
			return err
		}
		c.ok("room %s deleted", rest[0])
		return nil
	case "team-room":
		return c.teamRoom(ctx, rest)
	case "support-room":
		return c.supportRoom(ctx, rest)
	case "add-user", "remove-user":
		return c.membership(ctx, command, rest)
	case "put-user":
		return c.putUser(ctx, rest)
	case "token":
		return c.token(rest)
	case "health":
		return c.health(ctx)
	default:
		usage(c.out)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (c *CLI) ok(format string, args ...any) {
	fmt.Fprintln(c.out, color.Green.Sprintf(format, args...))
}

func (c *CLI) table(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(c.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func (c *CLI) listRooms(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rooms", flag.ContinueOnError)
	fs.SetOutput(c.out)
	filter := fs.String("filter", string(domain.FilterNone), "none, teams or techs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rooms, err := c.rooms.ListRooms(ctx, domain.RoomFilter(*filter))
	if err != nil {
		return err
	}
	table := c.table([]string{"ID", "Name", "Kind", "Team", "Created"})
	for _, room := range rooms {
		table.Append([]string{
			string(room.ID), room.Name, string(room.Kind),
			lo.FromPtrOr(room.TeamID, "-"),
			room.CreatedAt.Format(time.DateTime),
		})
	}
	table.Render()
	return nil
}

func (c *CLI) history(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("history needs a room id")
	}
	roomID := domain.RoomID(args[0])
	participants, err := c.store.Participants(ctx, roomID)
	if err != nil {
		return err
	}
	names := lo.SliceToMap(participants, func(i domain.Identity) (domain.UserID, string) {
		return i.UserID, i.DisplayName
	})
	messages, err := c.store.History(ctx, roomID)
	if err != nil {
		return err
	}
	table := c.table([]string{"Seq", "Time", "Sender", "Content"})
	for _, m := range messages {
		table.Append([]string{
			fmt.Sprint(m.Sequence),
			m.CreatedAt.Format(time.DateTime),
			m.Label("", names),
			m.Content,
		})
	}
	table.Render()
	return nil
}

func (c *CLI) createRoom(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-room", flag.ContinueOnError)
	fs.SetOutput(c.out)
	name := fs.String("name", "", "room name")
	kind := fs.String("kind", string(domain.KindTeam), "team or direct-support")
	team := fs.String("team", "", "team id of a team room")
	creator := fs.String("creator", "", "user added as first participant")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var teamID *string
	if *team != "" {
		teamID = team
	}
	room, err := c.rooms.CreateRoom(ctx, *name, domain.RoomKind(*kind), teamID, domain.UserID(*creator))
	if err != nil {
		return err
	}
	c.ok("room %s created", room.ID)
	return nil
}

// teamRoom creates the room of a team or brings its participants up to date.
func (c *CLI) teamRoom(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("team-room", flag.ContinueOnError)
	fs.SetOutput(c.out)
	team := fs.String("team", "", "team id")
	name := fs.String("name", "", "team name")
	owner := fs.String("owner", "", "team owner")
	members := fs.String("members", "", "comma separated member ids")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *team == "" {
		return fmt.Errorf("team-room needs -team")
	}
	memberIDs := lo.Map(splitRoles(*members), func(id string, _ int) domain.UserID { return domain.UserID(id) })
	room, err := c.rooms.EnsureTeamRoom(ctx, *team, *name, domain.UserID(*owner), memberIDs)
	if err != nil {
		return err
	}
	c.ok("team %s chats in room %s (%s)", *team, room.ID, room.Name)
	return nil
}

func (c *CLI) supportRoom(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("support-room needs a user id")
	}
	room, err := c.rooms.SupportRoomFor(ctx, domain.UserID(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, room.ID)
	return nil
}

func (c *CLI) membership(ctx context.Context, command string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%s needs a room id and a user id", command)
	}
	roomID, userID := domain.RoomID(args[0]), domain.UserID(args[1])
	if command == "add-user" {
		if err := c.rooms.AddParticipant(ctx, roomID, userID); err != nil {
			return err
		}
		c.ok("%s added to %s", userID, roomID)
		return nil
	}
	if err := c.rooms.RemoveParticipant(ctx, roomID, userID); err != nil {
		return err
	}
	c.ok("%s removed from %s", userID, roomID)
	return nil
}

func (c *CLI) putUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("put-user", flag.ContinueOnError)
	fs.SetOutput(c.out)
	id := fs.String("id", "", "user id")
	name := fs.String("name", "", "display name")
	roles := fs.String("roles", "", "comma separated roles")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("put-user needs -id")
	}
	identity := domain.Identity{UserID: domain.UserID(*id), DisplayName: *name, Roles: splitRoles(*roles)}
	if err := c.store.PutUser(ctx, identity); err != nil {
		return err
	}
	c.ok("user %s saved", identity.UserID)
	return nil
}

func (c *CLI) token(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("token needs a user id")
	}
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(c.out)
	roles := fs.String("roles", "", "comma separated roles")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if c.signer == nil {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	token, err := c.signer.GenerateToken(args[0], splitRoles(*roles))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, token)
	return nil
}

func (c *CLI) health(ctx context.Context) error {
	hc, err := client.NewHealthClient(c.grpcAddr)
	if err != nil {
		return err
	}
	defer hc.Close()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	statuses, err := hc.Status(ctx, "", grpcserver.ServiceName)
	if err != nil {
		return err
	}
	table := c.table([]string{"Service", "Status"})
	for _, service := range []string{"", grpcserver.ServiceName} {
		status := statuses[service]
		if status == "SERVING" {
			status = color.Green.Sprint(status)
		} else {
			status = color.Red.Sprint(status)
		}
		table.Append([]string{lo.Ternary(service == "", "(process)", service), status})
	}
	table.Render()
	return nil
}

func splitRoles(roles string) []string {
	return lo.Compact(lo.Map(strings.Split(roles, ","), func(r string, _ int) string {
		return strings.TrimSpace(r)
	}))
}
