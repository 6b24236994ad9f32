package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (a *App) handleCallback(q *tgbotapi.CallbackQuery) {
	if q.From == nil || q.Message == nil {
		return
	}
	userID := q.From.ID
	chatID := q.Message.Chat.ID
	messageID := q.Message.MessageID

	if !a.admins.IsAuthorized(userID) {
		a.ack(q.ID, "❌ No access")
		return
	}
	super := a.admins.IsSuperAdmin(userID)

	switch q.Data {
	case "confirm_purchase":
		a.confirmPurchase(chatID, messageID, userID)
		a.ack(q.ID, "")
		return
	case "cancel_purchase":
		a.sessions.Clear(userID)
		a.editMessage(chatID, messageID, "❌ Client creation cancelled.")
		a.ack(q.ID, "")
		return
	case "confirm_buy_client":
		a.confirmBuyForClient(chatID, messageID, userID)
		a.ack(q.ID, "")
		return
	case "cancel_buy_client":
		a.sessions.Clear(userID)
		a.editMessage(chatID, messageID, "❌ Proxy purchase cancelled.")
		a.ack(q.ID, "")
		return
	}

	action, name, adminID, ok := parseClientCallback(q.Data)
	if !ok {
		a.ack(q.ID, "")
		return
	}
	if !super && adminID != userID {
		a.ack(q.ID, "❌ No access to this client")
		return
	}

	switch action {
	case "delete":
		a.deleteClient(chatID, messageID, name, adminID)
	case "current":
		a.showCurrentProxy(chatID, messageID, name, adminID)
	case "myip":
		a.showClientIP(chatID, messageID, name, adminID)
	case "check":
		a.probeClientProxies(chatID, messageID, name, adminID)
	}
	a.ack(q.ID, "")
}

// parseClientCallback splits "action_name_adminID". Client names may
// themselves contain underscores, so only the first and last separators
// are structural.
func parseClientCallback(data string) (action, name string, adminID int64, ok bool) {
	first := strings.Index(data, "_")
	last := strings.LastIndex(data, "_")
	if first < 0 || last <= first {
		return "", "", 0, false
	}
	adminID, err := strconv.ParseInt(data[last+1:], 10, 64)
	if err != nil {
		return "", "", 0, false
	}
	return data[:first], data[first+1 : last], adminID, true
}

// confirmPurchase finishes the add-client-with-purchase flow: buy, create
// locally, then best-effort push to the proxy server.
func (a *App) confirmPurchase(chatID int64, messageID int, userID int64) {
	sess, ok := a.sessions.Get(userID)
	if !ok || sess.Action != actionAddClientPurchase || sess.Step != stepConfirmingPurchase {
		a.editMessage(chatID, messageID, "❌ Session expired. Start over.")
		return
	}
	defer a.sessions.Clear(userID)

	a.editMessage(chatID, messageID, "⏳ Buying proxies and creating the client...")

	descr := "user_" + sess.Username
	purchase, err := a.reseller.Buy(sess.Count, sess.Period, sess.Country, sess.Version, descr)
	if err != nil {
		a.reply(chatID, fmt.Sprintf("❌ Proxy purchase failed: %v", err))
		return
	}

	now := time.Now().UTC()
	rec := ClientRecord{
		Password:       sess.Password,
		Proxies:        purchase.Proxies,
		OrderID:        purchase.OrderID,
		OrderDescr:     descr,
		CreatedAt:      now.Format(time.RFC3339),
		ProxyExpiresAt: now.Add(time.Duration(sess.Period) * 24 * time.Hour).Format(time.RFC3339),
	}
	if err := a.clients.Create(sess.AdminID, sess.Username, rec, true); err != nil {
		a.reply(chatID, fmt.Sprintf("❌ Client creation failed: %v", err))
		return
	}

	if err := a.server.AddClient(sess.Username, sess.Password, translateProxies(purchase.Proxies)); err != nil {
		slog.Error("failed to add client to proxy server", "client", sess.Username, "error", err)
	}

	var b strings.Builder
	b.WriteString("✅ Client created and proxies purchased!\n\n")
	fmt.Fprintf(&b, "👤 Login: %s\n🔐 Password: %s\n", sess.Username, sess.Password)
	if len(purchase.Proxies) > 0 {
		b.WriteString("\n📦 Purchased proxies:\n")
		for i, p := range purchase.Proxies {
			fmt.Fprintf(&b, "%d. %s\n", i+1, p)
		}
	}
	if note := partialNote(len(purchase.Proxies), sess.Count); note != "" {
		b.WriteString(note)
	}
	fmt.Fprintf(&b, `
💰 Purchase details:
🆔 Order: %s
💸 Cost: %.2f %s
📊 Quantity: %d proxies
⏰ Period: %d days
💳 Remaining balance: %.2f %s`,
		purchase.OrderID, purchase.Price, purchase.Currency,
		purchase.Count, purchase.Period, purchase.Balance, purchase.Currency)
	a.replyKeyboard(chatID, userID, b.String())
}

// confirmBuyForClient finishes the buy-for-existing-client flow.
func (a *App) confirmBuyForClient(chatID int64, messageID int, userID int64) {
	sess, ok := a.sessions.Get(userID)
	if !ok || sess.Action != actionBuyProxy || sess.Step != stepConfirmingBuy {
		a.editMessage(chatID, messageID, "❌ Session expired. Start over.")
		return
	}
	defer a.sessions.Clear(userID)

	a.editMessage(chatID, messageID, "⏳ Buying proxies and adding them to the client...")

	descr := "user_" + sess.ClientName
	purchase, err := a.reseller.Buy(sess.Count, sess.Period, sess.Country, sess.Version, descr)
	if err != nil {
		a.editMessage(chatID, messageID, fmt.Sprintf("❌ Proxy purchase failed: %v", err))
		return
	}

	if _, err := a.clients.AppendProxies(sess.AdminID, sess.ClientName, purchase.Proxies); err != nil {
		a.editMessage(chatID, messageID, fmt.Sprintf("❌ Client %s: %v", sess.ClientName, err))
		return
	}
	expires := time.Now().UTC().Add(time.Duration(sess.Period) * 24 * time.Hour)
	if err := a.clients.RecordPurchase(sess.AdminID, sess.ClientName, purchase.OrderID, descr, expires); err != nil {
		slog.Error("failed to record purchase", "client", sess.ClientName, "error", err)
	}

	res := a.server.AddProxies(sess.ClientName, translateProxies(purchase.Proxies))
	slog.Info("purchased proxies pushed to proxy server",
		"client", sess.ClientName, "added", res.Added, "failed", res.Failed)

	var b strings.Builder
	b.WriteString("✅ Proxies purchased and added to the client!\n\n")
	fmt.Fprintf(&b, "👤 Client: %s\n📦 Added: %d proxies\n", sess.ClientName, len(purchase.Proxies))
	if note := partialNote(len(purchase.Proxies), sess.Count); note != "" {
		b.WriteString(note)
	}
	fmt.Fprintf(&b, `
💰 Purchase details:
🆔 Order: %s
💸 Cost: %.2f %s
📊 Quantity: %d proxies
⏰ Period: %d days
💳 Remaining balance: %.2f %s`,
		purchase.OrderID, purchase.Price, purchase.Currency,
		purchase.Count, purchase.Period, purchase.Balance, purchase.Currency)
	a.editMessage(chatID, messageID, b.String())
}

// partialNote warns when the reseller delivered fewer proxies than ordered.
func partialNote(got, ordered int) string {
	if got >= ordered {
		return ""
	}
	return fmt.Sprintf("\n⚠️ Warning: ordered %d but received %d. The reseller may be low on stock.\n", ordered, got)
}

func (a *App) deleteClient(chatID int64, messageID int, name string, adminID int64) {
	if _, ok := a.clients.Get(adminID, name); !ok {
		a.editMessage(chatID, messageID, "❌ Client not found")
		return
	}
	// Remote deletion is best effort; locally the client goes away
	// regardless so a dead proxy server cannot block cleanup.
	if err := a.server.DeleteClient(name); err != nil {
		slog.Error("failed to delete client from proxy server", "client", name, "error", err)
	}
	a.clients.Delete(adminID, name)
	a.editMessage(chatID, messageID, fmt.Sprintf("✅ Client %s deleted\n👨‍💼 Admin: %d", name, adminID))
}

func (a *App) showCurrentProxy(chatID int64, messageID int, name string, adminID int64) {
	rec, ok := a.clients.Get(adminID, name)
	if !ok {
		a.editMessage(chatID, messageID, "❌ Client not found")
		return
	}
	info, err := a.server.CurrentProxy(name, rec.Password)
	if err != nil {
		a.editMessage(chatID, messageID, fmt.Sprintf("❌ Failed to get the current proxy for %s: %v", name, err))
		return
	}
	a.editMessage(chatID, messageID, fmt.Sprintf(
		"🌐 Current proxy for client %s:\n📍 %s\n🌍 Country: %s\n👨‍💼 Admin: %d",
		name, orUnknown(info.Proxy), orUnknown(info.Country), adminID))
}

func (a *App) showClientIP(chatID int64, messageID int, name string, adminID int64) {
	rec, ok := a.clients.Get(adminID, name)
	if !ok {
		a.editMessage(chatID, messageID, "❌ Client not found")
		return
	}
	info, err := a.server.MyIP(name, rec.Password)
	if err != nil {
		a.editMessage(chatID, messageID, fmt.Sprintf("❌ Failed to get the IP for %s: %v", name, err))
		return
	}
	a.editMessage(chatID, messageID, fmt.Sprintf(
		"🌍 IP address of client %s:\n📍 %s\n🌍 Country: %s\n🏙 City: %s\n👨‍💼 Admin: %d",
		name, orUnknown(info.IP), orUnknown(info.Country), orUnknown(info.City), adminID))
}

func (a *App) probeClientProxies(chatID int64, messageID int, name string, adminID int64) {
	rec, ok := a.clients.Get(adminID, name)
	if !ok {
		a.editMessage(chatID, messageID, "❌ Client not found")
		return
	}
	if len(rec.Proxies) == 0 {
		a.editMessage(chatID, messageID, fmt.Sprintf("❌ Client %s has no proxies", name))
		return
	}

	a.editMessage(chatID, messageID, fmt.Sprintf("⏳ Probing %d proxies of client %s...", len(rec.Proxies), name))
	alive, dead := checkProxies(rec.Proxies)

	var b strings.Builder
	fmt.Fprintf(&b, "🔎 Proxy check for %s:\n\n✅ Alive: %d of %d\n", name, alive, len(rec.Proxies))
	if len(dead) > 0 {
		shown := dead
		if len(shown) > 5 {
			shown = shown[:5]
		}
		fmt.Fprintf(&b, "\n❌ Failed:\n%s\n", strings.Join(shown, "\n"))
		if len(dead) > 5 {
			fmt.Fprintf(&b, "... and %d more\n", len(dead)-5)
		}
	}
	a.editMessage(chatID, messageID, b.String())
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
