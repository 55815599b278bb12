// Package whatsapp wraps the whatsmeow session for the moderation bot: one
// paired device, typed outbound operations and raw event callbacks. Every
// consumer above this package talks in plain strings and the neutral types
// from types.go.
package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/forPelevin/gomoji"
	"github.com/rivo/uniseg"
	qrCode "github.com/skip2/go-qrcode"
	"github.com/sunshineplan/imgconv"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/damasnight/whatsapp-mod-bot/pkg/env"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
)

var (
	ErrNotConnected   = errors.New("whatsapp client is not connected")
	ErrNotLoggedIn    = errors.New("whatsapp client is not logged in")
	ErrInvalidGroupID = errors.New("whatsapp group id is not a group server jid")
)

const (
	qrChannelWaitTimeout = 2 * time.Minute
	pictureFetchTimeout  = 15 * time.Second
)

// Handlers are the inbound callbacks the bot core registers before Connect.
// All of them may be nil.
type Handlers struct {
	Message      func(evt *events.Message)
	Participants func(evt *events.GroupInfo)
	Connected    func()
	// Disconnected receives loggedOut=true when the session was invalidated
	// remotely and re-pairing is required.
	Disconnected func(loggedOut bool)
}

// Client owns the single whatsmeow session of the bot account.
type Client struct {
	wa       *whatsmeow.Client
	store    *sqlstore.Container
	handlers Handlers

	// Outbound sends share one limiter so a burst of policy side effects
	// cannot trip WhatsApp rate limits.
	limiter *rate.Limiter

	httpClient *http.Client
}

// NewClient opens the session datastore and prepares (but does not connect)
// the whatsmeow client. WHATSAPP_DATASTORE_URI is required.
func NewClient(ctx context.Context) (*Client, error) {
	driver := normalizeDatastoreDriver(env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_TYPE", "postgres"))
	dsn, err := env.GetEnvString("WHATSAPP_DATASTORE_URI")
	if err != nil {
		return nil, fmt.Errorf("parsing WHATSAPP_DATASTORE_URI: %w", err)
	}
	dsn = normalizeDatastoreDSN(driver, dsn)

	log.Print(nil).Info("Initializing WhatsApp datastore with driver=" + driver)

	container, err := sqlstore.New(ctx, driver, dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing whatsapp datastore: %w", err)
	}
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("upgrading whatsapp datastore schema: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading whatsapp device: %w", err)
	}
	if device == nil {
		device = container.NewDevice()
	}

	store.DeviceProps.Os = proto.String(runtime.GOOS)
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	store.DeviceProps.RequireFullSync = proto.Bool(false)

	client := whatsmeow.NewClient(device, nil)
	client.AutoTrustIdentity = true
	// The session supervisor owns reconnects; whatsmeow must not race it.
	client.EnableAutoReconnect = false

	if proxyURL, err := env.GetEnvString("WHATSAPP_CLIENT_PROXY_URL"); err == nil {
		client.SetProxyAddress(proxyURL)
	}

	sendsPerSecond := env.GetEnvIntOrDefault("WHATSAPP_SEND_RATE_PER_SECOND", 2)
	sendBurst := env.GetEnvIntOrDefault("WHATSAPP_SEND_BURST", 5)

	c := &Client{
		wa:         client,
		store:      container,
		limiter:    rate.NewLimiter(rate.Limit(sendsPerSecond), sendBurst),
		httpClient: &http.Client{Timeout: pictureFetchTimeout},
	}
	client.AddEventHandler(c.handleEvents)
	return c, nil
}

// SetHandlers registers the inbound callbacks. Must be called before Connect.
func (c *Client) SetHandlers(h Handlers) {
	c.handlers = h
}

func (c *Client) handleEvents(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		log.Session("open").Info("Client connected as " + maskJIDForLog(c.BotJID()))
		if c.handlers.Connected != nil {
			c.handlers.Connected()
		}
	case *events.Disconnected:
		log.Session("closed").Warn("Client disconnected")
		if c.handlers.Disconnected != nil {
			c.handlers.Disconnected(false)
		}
	case *events.LoggedOut:
		log.Session("closed").Error("Client logged out, re-pairing required")
		if c.handlers.Disconnected != nil {
			c.handlers.Disconnected(true)
		}
	case *events.StreamReplaced:
		log.Session("closed").Error("Stream replaced by another session")
		if c.handlers.Disconnected != nil {
			c.handlers.Disconnected(true)
		}
	case *events.ConnectFailure:
		loggedOut := e.Reason == events.ConnectFailureLoggedOut
		log.Session("closed").Error(fmt.Sprintf("Connection failure: reason=%v, message=%s", e.Reason, e.Message))
		if c.handlers.Disconnected != nil {
			c.handlers.Disconnected(loggedOut)
		}
	case *events.KeepAliveTimeout:
		log.Session("open").Warn(fmt.Sprintf("Keepalive timeout: errors=%d, lastSuccess=%s", e.ErrorCount, e.LastSuccess.Format(time.RFC3339)))
	case *events.TemporaryBan:
		log.Session("open").Error(fmt.Sprintf("Account temporarily banned: reason=%v, expires=%v", e.Code, e.Expire))
	case *events.Message:
		if c.handlers.Message != nil {
			c.handlers.Message(e)
		}
	case *events.GroupInfo:
		if c.handlers.Participants != nil && (len(e.Join) > 0 || len(e.Leave) > 0) {
			c.handlers.Participants(e)
		}
	}
}

// Connect establishes the socket. On a fresh device it renders the pairing QR
// code to the terminal and blocks until pairing succeeds or times out.
func (c *Client) Connect() error {
	if c.wa.Store.ID != nil {
		return c.wa.Connect()
	}

	ctx, cancel := context.WithTimeout(context.Background(), qrChannelWaitTimeout)
	defer cancel()

	qrChan, err := c.wa.GetQRChannel(ctx)
	if err != nil {
		return err
	}
	if err := c.wa.Connect(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return errors.New("whatsapp qr channel closed before delivering a code")
			}
			switch evt.Event {
			case "code":
				qr, err := qrCode.New(evt.Code, qrCode.Medium)
				if err != nil {
					return err
				}
				fmt.Println("Scan the QR code below to pair the bot account:")
				fmt.Println(qr.ToSmallString(false))
			case whatsmeow.QRChannelSuccess.Event:
				log.Session("connecting").Info("QR pairing successful")
				return nil
			case whatsmeow.QRChannelTimeout.Event:
				return errors.New("whatsapp qr channel timed out")
			case "error":
				if evt.Error != nil {
					return evt.Error
				}
				return errors.New("whatsapp qr channel reported an unspecified error")
			}
		}
	}
}

func (c *Client) Disconnect() {
	c.wa.Disconnect()
}

// IsReady reports whether the client is connected and logged in.
func (c *Client) IsReady() bool {
	return c.wa.IsConnected() && c.wa.IsLoggedIn()
}

func (c *Client) ensureReady() error {
	if !c.wa.IsConnected() {
		return ErrNotConnected
	}
	if !c.wa.IsLoggedIn() {
		return ErrNotLoggedIn
	}
	return nil
}

// BotJID returns the bot's own JID, or "" before pairing.
func (c *Client) BotJID() string {
	if c.wa.Store.ID == nil {
		return ""
	}
	return c.wa.Store.ID.String()
}

// ComposeJID parses a raw id into a JID, falling back to heuristics for bare
// group and user ids.
func ComposeJID(id string) types.JID {
	if strings.ContainsRune(id, '@') {
		if parsed, err := types.ParseJID(id); err == nil && parsed.User != "" {
			return parsed
		}
	}

	id = DecomposeJID(id)
	if strings.ContainsRune(id, '-') || len(id) >= 18 {
		return types.NewJID(id, types.GroupServer)
	}
	return types.NewJID(id, types.DefaultUserServer)
}

// DecomposeJID strips the domain suffix and leading plus from a raw id.
func DecomposeJID(id string) string {
	if strings.ContainsRune(id, '@') {
		id = strings.SplitN(id, "@", 2)[0]
	}
	if len(id) > 0 && id[0] == '+' {
		id = id[1:]
	}
	return strings.TrimSpace(id)
}

func groupJID(gjid string) (types.JID, error) {
	jid := ComposeJID(gjid)
	if jid.Server != types.GroupServer {
		return types.EmptyJID, ErrInvalidGroupID
	}
	return jid, nil
}

func (c *Client) send(ctx context.Context, to types.JID, msg *waE2E.Message) (string, error) {
	if err := c.ensureReady(); err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	msgExtra := whatsmeow.SendRequestExtra{ID: c.wa.GenerateMessageID()}
	_, err := c.wa.SendMessage(ctx, to, msg, msgExtra)
	if err != nil {
		return "", err
	}
	return msgExtra.ID, nil
}

// SendText sends a plain or mention-carrying text message and returns the
// message id.
func (c *Client) SendText(ctx context.Context, chatJID string, text string, mentions []string) (string, error) {
	to := ComposeJID(chatJID)

	if len(mentions) == 0 {
		return c.send(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
	}

	mentioned := make([]string, 0, len(mentions))
	for _, m := range mentions {
		mentioned = append(mentioned, ComposeJID(m).String())
	}
	return c.send(ctx, to, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
			ContextInfo: &waE2E.ContextInfo{
				MentionedJID: mentioned,
			},
		},
	})
}

// SendImage uploads and sends an image with a caption. A 72px JPEG thumbnail
// is generated with imgconv the same way stock WhatsApp clients do.
func (c *Client) SendImage(ctx context.Context, chatJID string, imageBytes []byte, imageType string, caption string, mentions []string) (string, error) {
	if err := c.ensureReady(); err != nil {
		return "", err
	}
	to := ComposeJID(chatJID)

	imgThumbDecode, err := imgconv.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return "", errors.New("error while decoding thumbnail image stream")
	}
	imgThumbEncode := new(bytes.Buffer)
	err = imgconv.Write(imgThumbEncode,
		imgconv.Resize(imgThumbDecode, &imgconv.ResizeOption{Width: 72}),
		&imgconv.FormatOption{Format: imgconv.JPEG})
	if err != nil {
		return "", errors.New("error while encoding thumbnail image stream")
	}

	imageUploaded, err := c.wa.Upload(ctx, imageBytes, whatsmeow.MediaImage)
	if err != nil {
		return "", errors.New("error while uploading media to whatsapp server")
	}

	var contextInfo *waE2E.ContextInfo
	if len(mentions) > 0 {
		mentioned := make([]string, 0, len(mentions))
		for _, m := range mentions {
			mentioned = append(mentioned, ComposeJID(m).String())
		}
		contextInfo = &waE2E.ContextInfo{MentionedJID: mentioned}
	}

	return c.send(ctx, to, &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(imageUploaded.URL),
			DirectPath:    proto.String(imageUploaded.DirectPath),
			Mimetype:      proto.String(imageType),
			Caption:       proto.String(caption),
			FileLength:    proto.Uint64(imageUploaded.FileLength),
			FileSHA256:    imageUploaded.FileSHA256,
			FileEncSHA256: imageUploaded.FileEncSHA256,
			MediaKey:      imageUploaded.MediaKey,
			JPEGThumbnail: imgThumbEncode.Bytes(),
			ContextInfo:   contextInfo,
		},
	})
}

// SendAudio uploads and sends an audio message.
func (c *Client) SendAudio(ctx context.Context, chatJID string, audioBytes []byte, mimeType string, seconds uint32) (string, error) {
	if err := c.ensureReady(); err != nil {
		return "", err
	}
	to := ComposeJID(chatJID)

	audioUploaded, err := c.wa.Upload(ctx, audioBytes, whatsmeow.MediaAudio)
	if err != nil {
		return "", errors.New("error while uploading media to whatsapp server")
	}

	return c.send(ctx, to, &waE2E.Message{
		AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(audioUploaded.URL),
			DirectPath:    proto.String(audioUploaded.DirectPath),
			Mimetype:      proto.String(mimeType),
			FileLength:    proto.Uint64(audioUploaded.FileLength),
			FileSHA256:    audioUploaded.FileSHA256,
			FileEncSHA256: audioUploaded.FileEncSHA256,
			MediaKey:      audioUploaded.MediaKey,
			Seconds:       proto.Uint32(seconds),
		},
	})
}

// DeleteMessage revokes a message for everyone. senderJID identifies the
// original author; required when the bot deletes someone else's message as a
// group admin. Deleting an already-gone message is not an error on the wire.
func (c *Client) DeleteMessage(ctx context.Context, chatJID string, messageID string, senderJID string) error {
	if err := c.ensureReady(); err != nil {
		return err
	}
	chat := ComposeJID(chatJID)

	sender := types.EmptyJID
	if senderJID != "" {
		sender = ComposeJID(senderJID)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.wa.SendMessage(ctx, chat, c.wa.BuildRevoke(chat, sender, messageID))
	return err
}

// React sends a single-emoji reaction to a message.
func (c *Client) React(ctx context.Context, chatJID string, messageID string, senderJID string, emoji string) error {
	if err := c.ensureReady(); err != nil {
		return err
	}
	if !gomoji.ContainsEmoji(emoji) && uniseg.GraphemeClusterCount(emoji) != 1 {
		return errors.New("whatsapp message reaction must contain exactly one emoji character")
	}
	chat := ComposeJID(chatJID)

	fromMe := senderJID == "" || sameUser(senderJID, c.BotJID())
	reaction := &waE2E.Message{
		ReactionMessage: &waE2E.ReactionMessage{
			Key: &waCommon.MessageKey{
				FromMe:      proto.Bool(fromMe),
				ID:          proto.String(messageID),
				RemoteJID:   proto.String(chat.String()),
				Participant: proto.String(ComposeJID(senderJID).String()),
			},
			Text:              proto.String(emoji),
			SenderTimestampMS: proto.Int64(time.Now().UnixMilli()),
		},
	}
	_, err := c.send(ctx, chat, reaction)
	return err
}

// RemoveParticipants removes members from a group and returns the JIDs the
// server confirmed removed.
func (c *Client) RemoveParticipants(ctx context.Context, gjid string, memberJIDs []string) ([]string, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	group, err := groupJID(gjid)
	if err != nil {
		return nil, err
	}

	jidList := make([]types.JID, 0, len(memberJIDs))
	for _, m := range memberJIDs {
		jidList = append(jidList, ComposeJID(m))
	}

	updated, err := c.wa.UpdateGroupParticipants(ctx, group, jidList, whatsmeow.ParticipantChangeRemove)
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0, len(updated))
	for _, p := range updated {
		removed = append(removed, p.JID.String())
	}
	return removed, nil
}

// GroupInfo fetches live group metadata. Security-sensitive checks (admin
// rights) must always go through here, never through a cache.
func (c *Client) GroupInfo(ctx context.Context, gjid string) (*GroupInfo, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	group, err := groupJID(gjid)
	if err != nil {
		return nil, err
	}
	info, err := c.wa.GetGroupInfo(ctx, group)
	if err != nil {
		return nil, err
	}
	return convertGroupInfo(info), nil
}

// JoinedGroups lists every group the bot currently participates in.
func (c *Client) JoinedGroups(ctx context.Context) ([]*GroupInfo, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	groups, err := c.wa.GetJoinedGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*GroupInfo, 0, len(groups))
	for _, g := range groups {
		out = append(out, convertGroupInfo(g))
	}
	return out, nil
}

// InviteLink returns the group's invite link; reset revokes the old one and
// returns a fresh link.
func (c *Client) InviteLink(ctx context.Context, gjid string, reset bool) (string, error) {
	if err := c.ensureReady(); err != nil {
		return "", err
	}
	group, err := groupJID(gjid)
	if err != nil {
		return "", err
	}
	return c.wa.GetGroupInviteLink(ctx, group, reset)
}

// SetAnnounce locks (announce=true) or unlocks group posting.
func (c *Client) SetAnnounce(ctx context.Context, gjid string, announce bool) error {
	if err := c.ensureReady(); err != nil {
		return err
	}
	group, err := groupJID(gjid)
	if err != nil {
		return err
	}
	return c.wa.SetGroupAnnounce(ctx, group, announce)
}

// ProfilePicture fetches a member's profile picture bytes, or an error when
// none is visible to the bot.
func (c *Client) ProfilePicture(ctx context.Context, userJID string) ([]byte, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	target := ComposeJID(userJID)
	info, err := c.wa.GetProfilePictureInfo(ctx, target, &whatsmeow.GetProfilePictureParams{Preview: false})
	if err != nil {
		return nil, err
	}
	if info == nil || info.URL == "" {
		return nil, errors.New("no profile picture available")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile picture fetch returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func maskJIDForLog(jid string) string {
	if len(jid) < 4 {
		return jid
	}
	return jid[0:len(jid)-4] + "xxxx"
}

func normalizeDatastoreDriver(driver string) string {
	switch strings.ToLower(driver) {
	case "postgresql", "postgres", "pgx":
		return "pgx"
	default:
		return strings.ToLower(driver)
	}
}

func normalizeDatastoreDSN(driver string, dsn string) string {
	if driver != "pgx" {
		return dsn
	}
	appendParam := func(current string, key string, value string) string {
		if strings.Contains(current, key+"=") {
			return current
		}
		separator := "?"
		if strings.Contains(current, "?") {
			if strings.HasSuffix(current, "?") || strings.HasSuffix(current, "&") {
				separator = ""
			} else {
				separator = "&"
			}
		}
		return current + separator + key + "=" + value
	}
	dsn = appendParam(dsn, "prefer_simple_protocol", "true")
	dsn = appendParam(dsn, "statement_cache_capacity", "0")
	dsn = appendParam(dsn, "default_query_exec_mode", "simple_protocol")
	return dsn
}
