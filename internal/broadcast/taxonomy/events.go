package taxonomy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	m "brigade/internal/broadcast/models"
)

var standardCategories = []Category{
	{ID: m.CategoryTeam, Label: "Team", Icon: "users", Color: "#2563eb"},
	{ID: m.CategoryScheduling, Label: "Scheduling", Icon: "calendar", Color: "#7c3aed"},
	{ID: m.CategoryRecipes, Label: "Recipes", Icon: "book-open", Color: "#059669"},
	{ID: m.CategoryInventory, Label: "Inventory", Icon: "package", Color: "#d97706"},
	{ID: m.CategoryFoodSafety, Label: "Food Safety", Icon: "thermometer", Color: "#dc2626"},
	{ID: m.CategoryFinancial, Label: "Financial", Icon: "receipt", Color: "#0891b2"},
	{ID: m.CategorySecurity, Label: "Security", Icon: "shield", Color: "#be123c"},
	{ID: m.CategoryCommunications, Label: "Communications", Icon: "megaphone", Color: "#9333ea"},
	{ID: m.CategorySystem, Label: "System", Icon: "settings", Color: "#6b7280"},
}

var (
	inApp         = []m.Channel{m.ChannelInApp}
	inAppAndEmail = []m.Channel{m.ChannelInApp, m.ChannelEmail}
	inAppAndSMS   = []m.Channel{m.ChannelInApp, m.ChannelSMS}
	allChannels   = []m.Channel{m.ChannelInApp, m.ChannelEmail, m.ChannelSMS}
)

var standardEvents = []EventDefinition{
	// Team
	{
		ID: "team_member_added", Category: m.CategoryTeam, Label: "Team member added",
		DefaultChannels: inApp, DefaultAudience: m.AudienceSupervisor,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("%s added to the roster", "name"),
	},
	{
		ID: "team_member_updated", Category: m.CategoryTeam, Label: "Team member updated",
		DefaultChannels: inApp, DefaultAudience: m.AudienceManager,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("%s's profile was updated", "name"),
	},
	{
		ID: "team_member_removed", Category: m.CategoryTeam, Label: "Team member removed",
		DefaultChannels: inAppAndEmail, DefaultAudience: m.AudienceManager, NotifyAffectedPerson: true,
		Severity: Fixed(m.SeverityWarning), Message: withDetail("%s removed from the roster", "name"),
	},
	{
		ID: "team_member_invited", Category: m.CategoryTeam, Label: "Team member invited",
		DefaultChannels: inAppAndEmail, DefaultAudience: m.AudienceManager, NotifyAffectedPerson: true,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("Invitation sent to %s", "email"),
	},
	{
		ID: "role_changed", Category: m.CategoryTeam, Label: "Role changed",
		DefaultChannels: inApp, DefaultAudience: m.AudienceManager, NotifyAffectedPerson: true,
		Severity: Fixed(m.SeverityInfo), Message: withDetails("%s is now %s", "name", "role"),
	},

	// Scheduling
	{
		ID: "schedule_published", Category: m.CategoryScheduling, Label: "Schedule published",
		DefaultChannels: inAppAndEmail, DefaultAudience: m.AudienceEveryone,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("Schedule for %s published", "week"),
	},
	{
		ID: "shift_swapped", Category: m.CategoryScheduling, Label: "Shift swapped",
		DefaultChannels: inApp, DefaultAudience: m.AudienceSupervisor, NotifyAffectedPerson: true,
		Severity: Fixed(m.SeverityInfo), Message: withDetails("%s swapped a shift with %s", "name", "with"),
	},
	{
		ID: "time_off_requested", Category: m.CategoryScheduling, Label: "Time off requested",
		DefaultChannels: inApp, DefaultAudience: m.AudienceManager,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("%s requested time off", "name"),
	},
	{
		ID: "attendance_late", Category: m.CategoryScheduling, Label: "Late arrival",
		DefaultChannels: inApp, DefaultAudience: m.AudienceSupervisor,
		Severity: Fixed(m.SeverityWarning), Message: withDetail("%s arrived late", "name"),
	},
	{
		ID: "attendance_no_show", Category: m.CategoryScheduling, Label: "No-show",
		DefaultChannels: inAppAndSMS, DefaultAudience: m.AudienceSupervisor,
		Severity: Fixed(m.SeverityCritical), Message: withDetail("%s did not show up for their shift", "name"),
	},

	// Recipes
	{
		ID: "recipe_created", Category: m.CategoryRecipes, Label: "Recipe created",
		DefaultChannels: inApp, DefaultAudience: m.AudienceStaff,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("Recipe %s created", "name"),
	},
	{
		ID: "recipe_updated", Category: m.CategoryRecipes, Label: "Recipe updated",
		DefaultChannels: inApp, DefaultAudience: m.AudienceStaff,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("Recipe %s updated", "name"),
	},
	{
		ID: "recipe_deleted", Category: m.CategoryRecipes, Label: "Recipe deleted",
		DefaultChannels: inApp, DefaultAudience: m.AudienceSupervisor,
		Severity: Fixed(m.SeverityWarning), Message: withDetail("Recipe %s deleted", "name"),
	},
	{
		ID: "allergen_updated", Category: m.CategoryRecipes, Label: "Allergen updated",
		DefaultChannels: inAppAndEmail, DefaultAudience: m.AudienceEveryone,
		Severity: Fixed(m.SeverityWarning), Message: withDetail("Allergen information for %s changed", "name"),
	},

	// Inventory
	{
		ID: "price_changed", Category: m.CategoryInventory, Label: "Price changed",
		DefaultChannels: inApp, DefaultAudience: m.AudienceManager,
		Severity: priceChangeSeverity, Message: priceChangeMessage,
	},
	{
		ID: "stock_low", Category: m.CategoryInventory, Label: "Stock low",
		DefaultChannels: inApp, DefaultAudience: m.AudienceSupervisor,
		Severity: stockSeverity, Message: withDetail("%s is running low", "item"),
	},
	{
		ID: "vendor_added", Category: m.CategoryInventory, Label: "Vendor added",
		DefaultChannels: inApp, DefaultAudience: m.AudienceManager,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("Vendor %s added", "name"),
	},

	// Food safety
	{
		ID: "temperature_out_of_range", Category: m.CategoryFoodSafety, Label: "Temperature out of range",
		DefaultChannels: allChannels, DefaultAudience: m.AudienceStaff,
		Severity: Fixed(m.SeverityCritical), Message: withDetail("%s is outside its safe temperature range", "unit"),
	},
	{
		ID: "food_safety_check_completed", Category: m.CategoryFoodSafety, Label: "Safety check completed",
		DefaultChannels: inApp, DefaultAudience: m.AudienceSupervisor,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("%s check completed", "check"),
	},
	{
		ID: "food_safety_check_missed", Category: m.CategoryFoodSafety, Label: "Safety check missed",
		DefaultChannels: inAppAndEmail, DefaultAudience: m.AudienceSupervisor,
		Severity: Fixed(m.SeverityWarning), Message: withDetail("%s check was missed", "check"),
	},

	// Financial
	{
		ID: "invoice_uploaded", Category: m.CategoryFinancial, Label: "Invoice uploaded",
		DefaultChannels: inApp, DefaultAudience: m.AudienceManager,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("Invoice from %s uploaded", "vendor"),
	},
	{
		ID: "invoice_approved", Category: m.CategoryFinancial, Label: "Invoice approved",
		DefaultChannels: inApp, DefaultAudience: m.AudienceManager,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("Invoice from %s approved", "vendor"),
	},
	{
		ID: "invoice_disputed", Category: m.CategoryFinancial, Label: "Invoice disputed",
		DefaultChannels: inAppAndEmail, DefaultAudience: m.AudienceManager,
		Severity: Fixed(m.SeverityWarning), Message: withDetail("Invoice from %s disputed", "vendor"),
	},
	{
		ID: "budget_exceeded", Category: m.CategoryFinancial, Label: "Budget exceeded",
		DefaultChannels: inAppAndEmail, DefaultAudience: m.AudienceOwner,
		Severity: Fixed(m.SeverityWarning), Message: withDetail("%s budget exceeded", "budget"),
	},

	// Security
	{
		ID: "security_level_changed", Category: m.CategorySecurity, Label: "Security level changed",
		DefaultChannels: inAppAndEmail, DefaultAudience: m.AudienceManager, NotifyAffectedPerson: true,
		Severity: Fixed(m.SeverityWarning), Message: withDetail("Security level changed for %s", "name"),
	},
	{
		ID: "permissions_updated", Category: m.CategorySecurity, Label: "Permissions updated",
		DefaultChannels: inApp, DefaultAudience: m.AudienceOwner,
		Severity: Fixed(m.SeverityWarning), Message: withDetail("Permissions updated for %s", "name"),
	},
	{
		ID: "login_failed_repeatedly", Category: m.CategorySecurity, Label: "Repeated failed logins",
		DefaultChannels: inAppAndEmail, DefaultAudience: m.AudienceOwner, NotifyAffectedPerson: true,
		Severity: Fixed(m.SeverityCritical), Message: withDetail("Repeated failed sign-ins for %s", "email"),
	},

	// Communications
	{
		ID: "announcement_posted", Category: m.CategoryCommunications, Label: "Announcement posted",
		DefaultChannels: inAppAndEmail, DefaultAudience: m.AudienceEveryone,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("New announcement: %s", "title"),
		Toast: CustomToast(10 * time.Second),
	},

	// System
	{
		ID: "settings_updated", Category: m.CategorySystem, Label: "Settings updated",
		DefaultChannels: inApp, DefaultAudience: m.AudienceOwner,
		Severity: Fixed(m.SeverityInfo), Message: withDetail("%s settings updated", "section"),
		Toast: Silent(),
	},
	{
		ID: "broadcast_config_updated", Category: m.CategorySystem, Label: "Notification settings updated",
		DefaultChannels: inApp, DefaultAudience: m.AudienceOwner,
		Severity: Fixed(m.SeverityInfo), Toast: Silent(),
	},
	{
		ID: "data_import_completed", Category: m.CategorySystem, Label: "Import completed",
		DefaultChannels: inApp, DefaultAudience: m.AudienceManager,
		Severity: Fixed(m.SeverityInfo), Message: withDetails("Imported %s %s", "count", "entity"),
	},
}

// withDetail fills format with one detail value.
func withDetail(format, key string) MessageTemplate {
	return withDetails(format, key)
}

// withDetails fills format with detail values in order; any missing value yields "".
func withDetails(format string, keys ...string) MessageTemplate {
	return func(details map[string]any) string {
		args := make([]any, len(keys))
		for i, k := range keys {
			v := detailString(details, k)
			if v == "" {
				return ""
			}
			args[i] = v
		}
		return fmt.Sprintf(format, args...)
	}
}

// priceChangeSeverity escalates to warning when a price moves by 20% or more.
func priceChangeSeverity(details map[string]any) m.Severity {
	pct, ok := detailFloat(details, "percent_change")
	if ok && (pct >= 20 || pct <= -20) {
		return m.SeverityWarning
	}
	return m.SeverityInfo
}

func priceChangeMessage(details map[string]any) string {
	item := detailString(details, "item")
	if item == "" {
		return ""
	}
	if pct, ok := detailFloat(details, "percent_change"); ok {
		return fmt.Sprintf("Price of %s changed by %s%%", item, strconv.FormatFloat(pct, 'f', -1, 64))
	}
	return fmt.Sprintf("Price of %s changed", item)
}

// stockSeverity is critical once an item is out of stock.
func stockSeverity(details map[string]any) m.Severity {
	qty, ok := detailFloat(details, "quantity")
	if ok && qty <= 0 {
		return m.SeverityCritical
	}
	return m.SeverityWarning
}

func detailString(details map[string]any, key string) string {
	v, ok := details[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func detailFloat(details map[string]any, key string) (float64, bool) {
	switch t := details[key].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
