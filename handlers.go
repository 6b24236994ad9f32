package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// botAPI is the slice of tgbotapi.BotAPI the handlers need, kept narrow so
// tests can substitute a recording double.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// App owns all mutable state and external clients; handlers hang off it
// instead of reaching for globals.
type App struct {
	cfg      Config
	bot      botAPI
	clients  *ClientStore
	admins   *AdminStore
	reseller *ResellerClient
	server   *SyncClient
	rec      *Reconciler
	sessions *SessionStore
}

// Menu button labels double as the free-text command surface.
const (
	btnAddClient       = "👤 Add client"
	btnAddWithPurchase = "🛒 Add with purchase"
	btnDeleteClient    = "🗑 Delete client"
	btnMyClients       = "📋 My clients"
	btnAllClients      = "📋 All clients"
	btnAddProxy        = "➕ Add proxies"
	btnCurrentProxy    = "🌐 Current proxy"
	btnMyIP            = "🌍 My IP"
	btnAddWithProxies  = "📥 Add client with proxies"
	btnBuyProxy        = "🛍 Buy proxies for client"
	btnCheckProxies    = "🔎 Check proxies"
	btnSync            = "🔄 Sync"
	btnManageAdmins    = "👥 Manage admins"
	btnBalance         = "💰 Check balance"
	btnAvailable       = "📦 Availability"
)

type menuCommand int

const (
	cmdNone menuCommand = iota
	cmdAddClient
	cmdAddWithProxies
	cmdAddWithPurchase
	cmdBuyProxy
	cmdDeleteClient
	cmdListClients
	cmdAddProxy
	cmdCurrentProxy
	cmdMyIP
	cmdCheckProxies
	cmdSync
	cmdBalance
	cmdAvailable
	cmdManageAdmins
)

func matchCommand(msg *tgbotapi.Message) menuCommand {
	if msg.IsCommand() {
		switch msg.Command() {
		case "addclient":
			return cmdAddClient
		case "addclientwithproxies":
			return cmdAddWithProxies
		case "addclientwithpurchase":
			return cmdAddWithPurchase
		case "buyproxy":
			return cmdBuyProxy
		case "deleteclient":
			return cmdDeleteClient
		case "clients":
			return cmdListClients
		case "addproxy":
			return cmdAddProxy
		case "currentproxy":
			return cmdCurrentProxy
		case "myip":
			return cmdMyIP
		case "checkproxy":
			return cmdCheckProxies
		case "sync":
			return cmdSync
		case "balance":
			return cmdBalance
		case "available":
			return cmdAvailable
		case "manageadmins":
			return cmdManageAdmins
		}
		return cmdNone
	}

	switch strings.TrimSpace(msg.Text) {
	case btnAddClient:
		return cmdAddClient
	case btnAddWithProxies:
		return cmdAddWithProxies
	case btnAddWithPurchase:
		return cmdAddWithPurchase
	case btnBuyProxy:
		return cmdBuyProxy
	case btnDeleteClient:
		return cmdDeleteClient
	case btnMyClients, btnAllClients:
		return cmdListClients
	case btnAddProxy:
		return cmdAddProxy
	case btnCurrentProxy:
		return cmdCurrentProxy
	case btnMyIP:
		return cmdMyIP
	case btnCheckProxies:
		return cmdCheckProxies
	case btnSync:
		return cmdSync
	case btnBalance:
		return cmdBalance
	case btnAvailable:
		return cmdAvailable
	case btnManageAdmins:
		return cmdManageAdmins
	}
	return cmdNone
}

func adminKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAddClient), tgbotapi.NewKeyboardButton(btnAddWithPurchase)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnDeleteClient), tgbotapi.NewKeyboardButton(btnMyClients)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAddProxy), tgbotapi.NewKeyboardButton(btnCurrentProxy)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnMyIP), tgbotapi.NewKeyboardButton(btnAddWithProxies)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBuyProxy), tgbotapi.NewKeyboardButton(btnCheckProxies)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnSync)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func superAdminKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAddClient), tgbotapi.NewKeyboardButton(btnAddWithPurchase)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnDeleteClient), tgbotapi.NewKeyboardButton(btnAllClients)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAddProxy), tgbotapi.NewKeyboardButton(btnCurrentProxy)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnMyIP), tgbotapi.NewKeyboardButton(btnAddWithProxies)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBuyProxy), tgbotapi.NewKeyboardButton(btnCheckProxies)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnSync), tgbotapi.NewKeyboardButton(btnManageAdmins)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnBalance), tgbotapi.NewKeyboardButton(btnAvailable)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func (a *App) keyboardFor(userID int64) tgbotapi.ReplyKeyboardMarkup {
	if a.admins.IsSuperAdmin(userID) {
		return superAdminKeyboard()
	}
	return adminKeyboard()
}

func (a *App) send(c tgbotapi.Chattable) {
	if _, err := a.bot.Send(c); err != nil {
		slog.Warn("telegram send failed", "error", err)
	}
}

func (a *App) reply(chatID int64, text string) {
	a.send(tgbotapi.NewMessage(chatID, text))
}

func (a *App) replyKeyboard(chatID, userID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = a.keyboardFor(userID)
	a.send(msg)
}

func (a *App) editMessage(chatID int64, messageID int, text string) {
	a.send(tgbotapi.NewEditMessageText(chatID, messageID, text))
}

func (a *App) ack(callbackID, text string) {
	if _, err := a.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		slog.Debug("callback ack failed", "error", err)
	}
}

func (a *App) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !a.admins.IsAuthorized(userID) {
		a.reply(chatID, "❌ You do not have access to this bot")
		return
	}
	super := a.admins.IsSuperAdmin(userID)

	if msg.IsCommand() && msg.Command() == "start" {
		a.sessions.Clear(userID)
		a.sendWelcome(chatID, userID, super)
		return
	}

	if cmd := matchCommand(msg); cmd != cmdNone {
		// A recognized menu press cancels whatever flow was pending so
		// stray free-text cannot be misread as input for it.
		a.sessions.Clear(userID)
		a.dispatch(cmd, chatID, userID, super)
		return
	}

	if sess, ok := a.sessions.Get(userID); ok {
		a.handleSessionInput(msg, sess, super)
		return
	}

	a.replyKeyboard(chatID, userID, "❌ Unknown command. Use the menu buttons below.")
}

func (a *App) dispatch(cmd menuCommand, chatID, userID int64, super bool) {
	switch cmd {
	case cmdAddClient:
		a.startAddClient(chatID, userID)
	case cmdAddWithProxies:
		a.startAddClientWithProxies(chatID, userID)
	case cmdAddWithPurchase:
		a.startAddClientWithPurchase(chatID, userID)
	case cmdBuyProxy:
		a.startBuyProxy(chatID, userID, super)
	case cmdDeleteClient:
		a.showClientSelection(chatID, userID, super, "delete", "🗑 Choose a client to delete:")
	case cmdListClients:
		a.listClients(chatID, userID, super)
	case cmdAddProxy:
		a.startAddProxy(chatID, userID, super)
	case cmdCurrentProxy:
		a.showClientSelection(chatID, userID, super, "current", "🌐 Choose a client to check the current proxy:")
	case cmdMyIP:
		a.showClientSelection(chatID, userID, super, "myip", "🌍 Choose a client to check the IP:")
	case cmdCheckProxies:
		a.showClientSelection(chatID, userID, super, "check", "🔎 Choose a client to probe proxies:")
	case cmdSync:
		a.runSync(chatID, userID, super)
	case cmdBalance:
		a.checkBalance(chatID, super)
	case cmdAvailable:
		a.checkAvailability(chatID, super)
	case cmdManageAdmins:
		a.startManageAdmins(chatID, userID, super)
	}
}

func (a *App) sendWelcome(chatID, userID int64, super bool) {
	role := "Admin (you see only your own clients)"
	if super {
		role = "Super-admin (you see every admin's clients)"
	}
	text := fmt.Sprintf(`🚀 Welcome to Proxy Manager Bot!

👤 Your role: %s

🎯 Use the buttons below to manage clients and proxies.

• 🛒 Add with purchase — buy proxies for a new client automatically
• 📥 Add client with proxies — add existing proxies, nothing is bought
• 🔄 Sync — restore clients on the proxy server
• 💰 Check balance — reseller balance (super-admin only)`, role)
	a.replyKeyboard(chatID, userID, text)
}

// visibleClients is the flattened registry for the super-admin and the
// user's own namespace otherwise, both in owner-annotated form.
func (a *App) visibleClients(userID int64, super bool) map[string]FlatClient {
	if super {
		return a.clients.AllFlattened()
	}
	ns := a.clients.Namespace(userID)
	out := make(map[string]FlatClient, len(ns))
	for name, rec := range ns {
		out[name] = FlatClient{ClientRecord: rec, AdminID: userID, OriginalName: name}
	}
	return out
}

func sortedKeys(m map[string]FlatClient) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func displayName(fc FlatClient, super bool) string {
	if super {
		return fmt.Sprintf("%s (admin %d)", fc.OriginalName, fc.AdminID)
	}
	return fc.OriginalName
}

func (a *App) showClientSelection(chatID, userID int64, super bool, action, prompt string) {
	visible := a.visibleClients(userID, super)
	if len(visible) == 0 {
		a.reply(chatID, "❌ No clients available")
		return
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, key := range sortedKeys(visible) {
		fc := visible[key]
		data := fmt.Sprintf("%s_%s_%d", action, fc.OriginalName, fc.AdminID)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(displayName(fc, super), data)))
	}
	msg := tgbotapi.NewMessage(chatID, prompt)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	a.send(msg)
}

func (a *App) listClients(chatID, userID int64, super bool) {
	visible := a.visibleClients(userID, super)
	if len(visible) == 0 {
		a.reply(chatID, "📋 No clients yet")
		return
	}
	scope := "your"
	if super {
		scope = "all"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Listing %s clients:\n\n", scope)
	for _, key := range sortedKeys(visible) {
		fc := visible[key]
		fmt.Fprintf(&b, "👤 %s\n", displayName(fc, super))
		fmt.Fprintf(&b, "   🔐 Password: %s\n", fc.Password)
		fmt.Fprintf(&b, "   🌐 Proxies: %d\n", len(fc.Proxies))
		if fc.OrderID != "" {
			fmt.Fprintf(&b, "   🆔 Order: %s\n", fc.OrderID)
		}
		if fc.ProxyExpiresAt != "" {
			if t, err := time.Parse(time.RFC3339, fc.ProxyExpiresAt); err == nil {
				fmt.Fprintf(&b, "   ⏰ Expires: %s\n", t.Format("2006-01-02"))
			}
		}
		b.WriteByte('\n')
	}
	a.reply(chatID, b.String())
}

func (a *App) startAddClient(chatID, userID int64) {
	a.sessions.Set(userID, &Session{Action: actionAddClient})
	a.reply(chatID, `➕ Adding a client

📝 Send the data as:
login password

For example: user123 pass456

👤 The client will be added to your namespace`)
}

func (a *App) startAddClientWithProxies(chatID, userID int64) {
	a.sessions.Set(userID, &Session{Action: actionAddClientWithProxies})
	a.reply(chatID, `📥 Adding a client with existing proxies

📝 Send the data as:
client1 mypassword123
31.129.21.214:9379:gNzocE:fnKaHc
45.91.65.201:9524:gNzocE:fnKaHc

First line: login password
Remaining lines: proxies as host:port:user:pass

ℹ️ No proxies will be purchased
👤 The client will be added to your namespace`)
}

func (a *App) startAddClientWithPurchase(chatID, userID int64) {
	if !a.reseller.Configured() {
		a.reply(chatID, "❌ Reseller API key is not configured")
		return
	}
	balance, err := a.reseller.GetBalance()
	if err != nil {
		a.reply(chatID, fmt.Sprintf("❌ Reseller connection error: %v", err))
		return
	}
	price, err := a.reseller.GetPrice(a.cfg.BuyCount, a.cfg.BuyPeriod, a.cfg.BuyVersion)
	if err != nil {
		a.reply(chatID, fmt.Sprintf("❌ Failed to get the price: %v", err))
		return
	}
	if balance.Balance < price.Price {
		a.reply(chatID, fmt.Sprintf(`❌ Insufficient reseller balance!

💰 Current balance: %.2f %s
💸 Required: %.2f %s
📊 Price for %d shared proxies for %d days`,
			balance.Balance, balance.Currency, price.Price, price.Currency,
			a.cfg.BuyCount, a.cfg.BuyPeriod))
		return
	}

	a.sessions.Set(userID, &Session{
		Action:  actionAddClientPurchase,
		Step:    stepWaitingUsername,
		AdminID: userID,
		Count:   a.cfg.BuyCount,
		Period:  a.cfg.BuyPeriod,
		Country: a.cfg.BuyCountry,
		Version: a.cfg.BuyVersion,
	})
	a.reply(chatID, fmt.Sprintf(`✅ Ready to buy proxies!

💰 Reseller balance: %.2f %s
💸 Cost: %.2f %s
📦 Quantity: %d shared proxies for %d days

👤 Enter a login for the new client:`,
		balance.Balance, balance.Currency, price.Price, price.Currency,
		a.cfg.BuyCount, a.cfg.BuyPeriod))
}

func (a *App) startBuyProxy(chatID, userID int64, super bool) {
	visible := a.visibleClients(userID, super)
	if len(visible) == 0 {
		a.reply(chatID, "❌ No clients to buy proxies for")
		return
	}
	a.sessions.Set(userID, &Session{
		Action:  actionBuyProxy,
		Step:    stepWaitingClientName,
		Count:   a.cfg.BuyCount,
		Period:  a.cfg.BuyPeriod,
		Country: a.cfg.BuyCountry,
		Version: a.cfg.BuyVersion,
	})

	var b strings.Builder
	fmt.Fprintf(&b, `🛍 Buying proxies for a client

Send the client's name, optionally with a count and period:
name [count] [period]

Defaults: %d shared proxies for %d days.

📋 Available clients:
`, a.cfg.BuyCount, a.cfg.BuyPeriod)
	for _, key := range sortedKeys(visible) {
		fc := visible[key]
		fmt.Fprintf(&b, "• %s (%d proxies)\n", displayName(fc, super), len(fc.Proxies))
	}
	a.reply(chatID, b.String())
}

func (a *App) startAddProxy(chatID, userID int64, super bool) {
	visible := a.visibleClients(userID, super)
	if len(visible) == 0 {
		a.reply(chatID, "❌ No clients available")
		return
	}
	a.sessions.Set(userID, &Session{Action: actionAddProxy})

	var b strings.Builder
	b.WriteString(`➕ Adding proxies

📝 Send the data as:
client_name
host:port:user:pass

Several proxies at once also work:
client_name
host1:port1:user1:pass1
host2:port2:user2:pass2

📋 Available clients:
`)
	for _, key := range sortedKeys(visible) {
		fc := visible[key]
		fmt.Fprintf(&b, "• %s (%d proxies)\n", displayName(fc, super), len(fc.Proxies))
	}
	a.reply(chatID, b.String())
}

func (a *App) runSync(chatID, userID int64, super bool) {
	a.reply(chatID, "🔄 Syncing clients with the proxy server...")
	scope := userID
	if super {
		scope = 0
	}
	res := a.rec.SyncAll(scope)
	slog.Info("sync finished", "success", res.Success, "failed", res.Failed)

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Sync finished!\n\n📊 Results:\n✅ Succeeded: %d\n❌ Failed: %d", res.Success, res.Failed)
	if len(res.Errors) > 0 {
		shown := res.Errors
		if len(shown) > 5 {
			shown = shown[:5]
		}
		fmt.Fprintf(&b, "\n\n❌ Errors:\n%s", strings.Join(shown, "\n"))
		if len(res.Errors) > 5 {
			fmt.Fprintf(&b, "\n... and %d more errors", len(res.Errors)-5)
		}
	}
	a.reply(chatID, b.String())
}

func (a *App) checkBalance(chatID int64, super bool) {
	if !super {
		a.reply(chatID, "❌ This command is only available to the super-admin")
		return
	}
	if !a.reseller.Configured() {
		a.reply(chatID, "❌ Reseller API key is not configured")
		return
	}
	a.reply(chatID, "⏳ Checking the reseller balance...")
	balance, err := a.reseller.GetBalance()
	if err != nil {
		a.reply(chatID, fmt.Sprintf("❌ Balance check failed: %v", err))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💰 Reseller balance:\n\n💳 Current balance: %.2f %s\n🆔 Account ID: %s\n",
		balance.Balance, balance.Currency, balance.AccountID)
	if price, err := a.reseller.GetPrice(a.cfg.BuyCount, a.cfg.BuyPeriod, a.cfg.BuyVersion); err == nil && price.Price > 0 {
		canBuy := int(balance.Balance / price.Price)
		fmt.Fprintf(&b, "\n📊 Price for %d shared proxies for %d days: %.2f %s\n🛒 Orders affordable: %d",
			a.cfg.BuyCount, a.cfg.BuyPeriod, price.Price, balance.Currency, canBuy)
	}
	a.reply(chatID, b.String())
}

func (a *App) checkAvailability(chatID int64, super bool) {
	if !super {
		a.reply(chatID, "❌ This command is only available to the super-admin")
		return
	}
	if !a.reseller.Configured() {
		a.reply(chatID, "❌ Reseller API key is not configured")
		return
	}
	count, err := a.reseller.GetCount(a.cfg.BuyCountry, a.cfg.BuyVersion)
	if err != nil {
		a.reply(chatID, fmt.Sprintf("❌ Availability check failed: %v", err))
		return
	}
	a.reply(chatID, fmt.Sprintf("📦 Reseller availability:\n\n🌍 Country: %s\n🔢 Proxies in stock: %d",
		strings.ToUpper(a.cfg.BuyCountry), count))
}

func (a *App) startManageAdmins(chatID, userID int64, super bool) {
	if !super {
		a.reply(chatID, "❌ This command is only available to the super-admin")
		return
	}
	a.sessions.Set(userID, &Session{Action: actionManageAdmins})
	a.reply(chatID, fmt.Sprintf(`👥 Admin management

📋 Current admins: %s

Send a command:
• +123456789 — add an admin
• -123456789 — remove an admin
• list — show the admin list`, formatAdminList(a.admins.List())))
}

func (a *App) handleSessionInput(msg *tgbotapi.Message, sess *Session, super bool) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch sess.Action {
	case actionAddClient:
		a.inputAddClient(chatID, userID, text)
	case actionAddClientWithProxies:
		a.inputAddClientWithProxies(chatID, userID, text)
	case actionAddClientPurchase:
		a.inputPurchaseFlow(chatID, userID, text, sess)
	case actionBuyProxy:
		a.inputBuyProxy(chatID, userID, text, sess, super)
	case actionAddProxy:
		a.inputAddProxy(chatID, userID, text, super)
	case actionManageAdmins:
		a.inputManageAdmins(chatID, userID, text, super)
	default:
		a.sessions.Clear(userID)
	}
}

func (a *App) inputAddClient(chatID, userID int64, text string) {
	parts := strings.Fields(firstLine(text))
	if len(parts) < 2 {
		a.reply(chatID, "❌ Wrong format. Use: login password")
		return
	}
	a.finishCreateClient(chatID, userID, parts[0], parts[1], nil)
}

func (a *App) inputAddClientWithProxies(chatID, userID int64, text string) {
	lines := nonEmptyLines(text)
	if len(lines) < 2 {
		a.reply(chatID, "❌ Wrong format. First line: login password, remaining lines: proxies")
		return
	}
	parts := strings.Fields(lines[0])
	if len(parts) < 2 {
		a.reply(chatID, "❌ Wrong first line. Use: login password")
		return
	}
	proxies, bad := collectProxies(lines[1:])
	if bad != "" {
		a.reply(chatID, fmt.Sprintf("❌ Invalid proxy format: %s\nUse: host:port:user:pass", bad))
		return
	}
	if len(proxies) == 0 {
		a.reply(chatID, "❌ No valid proxies found")
		return
	}
	a.finishCreateClient(chatID, userID, parts[0], parts[1], proxies)
}

// finishCreateClient registers the client locally and pushes it to the
// proxy server, reporting a sync failure as a warning rather than rolling
// the local create back.
func (a *App) finishCreateClient(chatID, userID int64, name, password string, proxies []string) {
	a.sessions.Clear(userID)

	rec := ClientRecord{
		Password:  password,
		Proxies:   proxies,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := a.clients.Create(userID, name, rec, true); err != nil {
		a.replyKeyboard(chatID, userID, fmt.Sprintf("❌ Client %s: %v", name, err))
		return
	}

	if err := a.server.AddClient(name, password, translateProxies(proxies)); err != nil {
		slog.Error("failed to add client to proxy server", "client", name, "error", err)
		a.replyKeyboard(chatID, userID, fmt.Sprintf(
			"✅ Client %s added locally with %d proxies\n⚠️ Proxy server sync failed: %v",
			name, len(proxies), err))
		return
	}
	a.replyKeyboard(chatID, userID, fmt.Sprintf(
		"✅ Client %s added!\n👤 Login: %s\n🔐 Password: %s\n🌐 Proxies: %d\n👨‍💼 Admin: %d",
		name, name, password, len(proxies), userID))
}

func (a *App) inputPurchaseFlow(chatID, userID int64, text string, sess *Session) {
	switch sess.Step {
	case stepWaitingUsername:
		if len(text) < 3 {
			a.reply(chatID, "❌ The login must be at least 3 characters. Try again:")
			return
		}
		if _, _, found := a.clients.FindByName(text, 0); found {
			a.reply(chatID, "❌ A client with this login already exists. Enter another login:")
			return
		}
		sess.Username = text
		sess.Step = stepWaitingPassword
		a.reply(chatID, fmt.Sprintf("✅ Login: %s\n\n🔐 Now enter a password for the client:", text))

	case stepWaitingPassword:
		if len(text) < 4 {
			a.reply(chatID, "❌ The password must be at least 4 characters. Try again:")
			return
		}
		sess.Password = text
		sess.Step = stepConfirmingPurchase

		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Confirm purchase", "confirm_purchase"),
				tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "cancel_purchase"),
			),
		)
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(`📋 Confirm client creation:

👤 Login: %s
🔐 Password: %s
📦 Proxies: %d shared for %d days
💸 Cost: will be charged to the reseller balance

❓ Create the client and buy the proxies?`,
			sess.Username, sess.Password, sess.Count, sess.Period))
		msg.ReplyMarkup = kb
		a.send(msg)
	}
}

func (a *App) inputBuyProxy(chatID, userID int64, text string, sess *Session, super bool) {
	if sess.Step != stepWaitingClientName {
		return
	}
	parts := strings.Fields(text)
	if len(parts) == 0 {
		a.reply(chatID, "❌ Send the client's name")
		return
	}
	name := parts[0]
	if len(parts) >= 2 {
		if n, err := strconv.Atoi(parts[1]); err == nil && n > 0 {
			sess.Count = n
		}
	}
	if len(parts) >= 3 {
		if n, err := strconv.Atoi(parts[2]); err == nil && n > 0 {
			sess.Period = n
		}
	}

	scope := userID
	if super {
		scope = 0
	}
	_, adminID, found := a.clients.FindByName(name, scope)
	if !found {
		a.sessions.Clear(userID)
		a.reply(chatID, fmt.Sprintf("❌ Client %s was not found or you have no access to it", name))
		return
	}
	if !a.reseller.Configured() {
		a.sessions.Clear(userID)
		a.reply(chatID, "❌ Reseller API key is not configured")
		return
	}

	a.reply(chatID, "⏳ Checking the reseller balance and price...")
	balance, err := a.reseller.GetBalance()
	if err != nil {
		a.sessions.Clear(userID)
		a.reply(chatID, fmt.Sprintf("❌ Reseller connection error: %v", err))
		return
	}
	price, err := a.reseller.GetPrice(sess.Count, sess.Period, sess.Version)
	if err != nil {
		a.sessions.Clear(userID)
		a.reply(chatID, fmt.Sprintf("❌ Failed to get the price: %v", err))
		return
	}
	if balance.Balance < price.Price {
		a.sessions.Clear(userID)
		a.reply(chatID, fmt.Sprintf(`❌ Insufficient reseller balance!

💰 Current balance: %.2f %s
💸 Required: %.2f %s
📊 Price for %d shared proxies for %d days`,
			balance.Balance, balance.Currency, price.Price, price.Currency, sess.Count, sess.Period))
		return
	}

	sess.ClientName = name
	sess.AdminID = adminID
	sess.Step = stepConfirmingBuy
	sess.Price = price.Price
	sess.Currency = price.Currency

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm purchase", "confirm_buy_client"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "cancel_buy_client"),
		),
	)
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(`📋 Confirm the purchase:

👤 Client: %s
📦 Proxies: %d shared for %d days
💸 Cost: %.2f %s, charged to the reseller balance

❓ Buy the proxies for this client?`,
		name, sess.Count, sess.Period, price.Price, price.Currency))
	msg.ReplyMarkup = kb
	a.send(msg)
}

func (a *App) inputAddProxy(chatID, userID int64, text string, super bool) {
	lines := nonEmptyLines(text)
	if len(lines) < 2 {
		a.reply(chatID, "❌ Wrong format. Use:\nclient_name\nhost:port:user:pass")
		return
	}
	name := lines[0]

	scope := userID
	if super {
		scope = 0
	}
	_, adminID, found := a.clients.FindByName(name, scope)
	if !found {
		a.sessions.Clear(userID)
		a.reply(chatID, fmt.Sprintf("❌ Client %s was not found or you have no access to it", name))
		return
	}

	proxies, bad := collectProxies(lines[1:])
	if bad != "" {
		a.reply(chatID, fmt.Sprintf("❌ Invalid proxy format: %s\nUse: host:port:user:pass", bad))
		return
	}
	if len(proxies) == 0 {
		a.reply(chatID, "❌ No valid proxies found")
		return
	}

	total, err := a.clients.AppendProxies(adminID, name, proxies)
	if err != nil {
		a.sessions.Clear(userID)
		a.reply(chatID, fmt.Sprintf("❌ Failed to add proxies: %v", err))
		return
	}
	a.sessions.Clear(userID)

	a.server.AddProxies(name, translateProxies(proxies))

	a.replyKeyboard(chatID, userID, fmt.Sprintf(
		"✅ Added %d proxies to client %s\n🌐 Total proxies: %d\n👨‍💼 Admin: %d",
		len(proxies), name, total, adminID))
}

func (a *App) inputManageAdmins(chatID, userID int64, text string, super bool) {
	if !super {
		a.sessions.Clear(userID)
		return
	}
	switch {
	case text == "list":
		a.reply(chatID, "📋 Admin list: "+formatAdminList(a.admins.List()))
	case strings.HasPrefix(text, "+"):
		id, err := strconv.ParseInt(strings.TrimSpace(text[1:]), 10, 64)
		if err != nil {
			a.reply(chatID, "❌ Invalid ID format")
			return
		}
		if !a.admins.Add(id) {
			a.reply(chatID, fmt.Sprintf("❌ User %d is already an admin", id))
			return
		}
		a.reply(chatID, fmt.Sprintf("✅ User %d added to admins", id))
	case strings.HasPrefix(text, "-"):
		id, err := strconv.ParseInt(strings.TrimSpace(text[1:]), 10, 64)
		if err != nil {
			a.reply(chatID, "❌ Invalid ID format")
			return
		}
		if !a.admins.Remove(id) {
			a.reply(chatID, fmt.Sprintf("❌ User %d is not an admin", id))
			return
		}
		a.reply(chatID, fmt.Sprintf("✅ User %d removed from admins", id))
	default:
		a.reply(chatID, "❌ Unknown command. Use +ID, -ID or list")
	}
}

func formatAdminList(admins []int64) string {
	if len(admins) == 0 {
		return "no admins"
	}
	parts := make([]string, len(admins))
	for i, id := range admins {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	return line
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// collectProxies validates chat-entered proxy lines, returning the first
// offending line when one does not match host:port:user:pass.
func collectProxies(lines []string) ([]string, string) {
	var proxies []string
	for _, line := range lines {
		if !isLocalProxyFormat(line) {
			return nil, line
		}
		proxies = append(proxies, line)
	}
	return proxies, ""
}
