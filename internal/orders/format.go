package orders

import (
	"fmt"
	"strings"

	"carservice/internal/model"
)

var statusLabels = map[model.OrderStatus]string{
	model.OrderInWork: "🔧 В работе",
	model.OrderWait:   "✅ Готов к выдаче",
	model.OrderClosed: "🏁 Закрыт",
}

func StatusLabel(s model.OrderStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// FormatOrder renders an order card.
func FormatOrder(o *model.Order) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Заказ #%d\n", o.ID))
	sb.WriteString(fmt.Sprintf("Статус: %s\n", StatusLabel(o.Status)))
	sb.WriteString(fmt.Sprintf("Работы: %s\n", o.Description))
	sb.WriteString(fmt.Sprintf("Клиент: %s %s\n", o.ClientName, o.ClientContact))
	sb.WriteString(fmt.Sprintf("Мастер: %s %s\n", o.MasterName, o.MasterContact))
	if car := FormatVehicle(o.Vehicle); car != "" {
		sb.WriteString("Авто: " + car + "\n")
	}
	sb.WriteString(fmt.Sprintf("Создан: %s", o.CreatedAt.Format("02.01.2006 15:04")))
	return sb.String()
}

// FormatVehicle renders "Lada Vesta 2020, А123ВС77, 50000 км".
func FormatVehicle(v model.Vehicle) string {
	var parts []string
	name := strings.TrimSpace(v.Brand + " " + v.Model)
	if v.Year > 0 {
		name = strings.TrimSpace(fmt.Sprintf("%s %d", name, v.Year))
	}
	if name != "" {
		parts = append(parts, name)
	}
	if v.Plate != "" {
		parts = append(parts, v.Plate)
	}
	if v.VIN != "" {
		parts = append(parts, "VIN "+v.VIN)
	}
	if v.Mileage > 0 {
		parts = append(parts, fmt.Sprintf("%d км", v.Mileage))
	}
	return strings.Join(parts, ", ")
}
