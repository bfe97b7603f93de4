package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MishthiJain8/joinright/internal/adapters/capture"
	"github.com/MishthiJain8/joinright/internal/adapters/httpapi"
	"github.com/MishthiJain8/joinright/internal/adapters/rtc"
	"github.com/MishthiJain8/joinright/internal/adapters/ws"
	"github.com/MishthiJain8/joinright/internal/app"
	"github.com/MishthiJain8/joinright/internal/core"
	"github.com/MishthiJain8/joinright/internal/domain"
)

func NewJoinCmd(deps *Dependencies) *cobra.Command {
	var (
		room   string
		name   string
		asHost bool
		record bool
	)

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a meeting room",
		Long:  "Connect to the signaling server, acquire camera and microphone, and join the given room. Attendees may pass through a waiting room; hosts admit them with /admit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if room == "" {
				return errors.New("--room is required")
			}
			if name == "" {
				name = "guest"
			}
			return runJoin(deps, room, name, asHost, record)
		},
	}

	cmd.Flags().StringVarP(&room, "room", "r", "", "Room id to join")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	cmd.Flags().BoolVar(&asHost, "host", false, "Join as the meeting host")
	cmd.Flags().BoolVar(&record, "record", false, "Record local media while in the meeting")

	return cmd
}

func runJoin(deps *Dependencies, room, name string, asHost, record bool) error {
	cfg := deps.Config
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	local, err := domain.NewUser(name)
	if err != nil {
		return err
	}

	api := httpapi.NewClient(cfg.APIBaseURL)
	if err := api.ValidateMeeting(ctx, domain.RoomID(room)); err != nil {
		return err
	}

	manager, err := capture.NewManager()
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	say := func(format string, args ...any) {
		fmt.Fprintf(out, format+"\n", args...)
		out.Flush()
	}

	ctrl := app.NewController(cfg, app.Deps{
		Registry:    app.NewRegistry(),
		Transport:   ws.NewClient(cfg.SignalURL, cfg.SendBuffer),
		Capture:     manager,
		LinkFactory: rtc.NewLinkFactory(rtc.DefaultConfig(cfg.ICEServers)),
		Recorder:    capture.NewRecorder(cfg.RecordingDir),
		Uploader:    api,
		Callbacks: app.Callbacks{
			OnChat: func(msg core.ChatMessagePayload) {
				if msg.Type == core.ChatTypeReaction {
					say("  %s reacted: %s", msg.Sender, msg.Message)
					return
				}
				say("  %s: %s", msg.Sender, msg.Message)
			},
			OnRoster: func(ps []domain.Participant) {
				names := make([]string, 0, len(ps))
				for _, p := range ps {
					names = append(names, p.DisplayName)
				}
				say("* participants (%d): %s", len(ps), strings.Join(names, ", "))
			},
			OnNotice: func(msg string) { say("* %s", msg) },
			OnPeerMedia: func(remote domain.RemoteID, kind core.TrackKind, enabled bool) {
				say("* %s %s: %v", remote, kind, enabled)
			},
		},
	})

	role := domain.RoleAttendee
	if asHost {
		role = domain.RoleHost
	}

	say("joining room %s as %s...", room, name)
	if err := ctrl.Join(ctx, local, domain.RoomID(room), role); err != nil {
		var aerr *core.AdmissionError
		if errors.As(err, &aerr) {
			return fmt.Errorf("not admitted: %s", aerr.Message)
		}
		return err
	}
	defer ctrl.Leave()
	say("joined. type a message to chat, /help for commands")

	if record {
		if err := ctrl.StartRecording(); err != nil {
			say("* recording unavailable: %v", err)
		}
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := dispatch(ctx, ctrl, say, line); quit {
				return nil
			}
		}
	}
}

// dispatch interprets one line of console input. Anything that is not a
// command is sent as chat.
func dispatch(ctx context.Context, ctrl *app.Controller, say func(string, ...any), line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		_ = ctrl.SetTyping(false)
		if err := ctrl.SendChat(line); err != nil {
			say("* chat failed: %v", err)
		}
		return false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	var err error
	switch cmd {
	case "help":
		say("commands: /mute /video /screen /stopscreen /react <emoji> /hand /pending /admit <id> /reject <id> /admitall /lock /unlock /start /end [msg] /mutelocal <id> /record /stoprecord /roster /quit")
	case "mute":
		err = ctrl.ToggleAudio()
	case "video":
		err = ctrl.ToggleVideo()
	case "screen":
		err = ctrl.StartScreenShare(ctx)
	case "stopscreen":
		err = ctrl.StopScreenShare()
	case "react":
		err = ctrl.SendReaction(arg)
	case "hand":
		err = ctrl.ToggleHandRaise()
	case "pending":
		for _, req := range ctrl.PendingAdmissions() {
			say("  waiting: %s (%s)", req.DisplayName, req.RemoteID)
		}
	case "admit":
		err = ctrl.AdmitParticipant(domain.RemoteID(arg))
	case "reject":
		err = ctrl.RejectParticipant(domain.RemoteID(arg))
	case "admitall":
		err = ctrl.AdmitAll()
	case "lock":
		err = ctrl.LockRoom()
	case "unlock":
		err = ctrl.UnlockRoom()
	case "start":
		err = ctrl.StartMeeting()
	case "end":
		if arg == "" {
			arg = "The host ended the meeting."
		}
		err = ctrl.EndMeetingForAll(arg)
		if err == nil {
			return true
		}
	case "mutelocal":
		ctrl.MuteLocally(domain.RemoteID(arg), true)
	case "record":
		err = ctrl.StartRecording()
	case "stoprecord":
		var files []string
		files, err = ctrl.StopRecording(ctx)
		for _, f := range files {
			say("  saved %s", f)
		}
	case "roster":
		for _, p := range ctrl.Roster() {
			say("  %s (%s) hand=%v", p.DisplayName, p.RemoteID, p.HandRaised)
		}
	case "quit":
		return true
	default:
		say("* unknown command /%s", cmd)
	}
	if err != nil {
		say("* %v", err)
	}
	return false
}

