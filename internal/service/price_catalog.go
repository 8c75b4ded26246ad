package service

import (
	"context"
	"strings"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
)

// PriceCatalog рассчитывает цену услуги для типа автомобиля
type PriceCatalog interface {
	Quote(ctx context.Context, service, vehicleType string) (int64, error)
}

// StaticPriceCatalog прайс-лист из конфигурации: услуга -> тип автомобиля -> цена в минорных единицах
type StaticPriceCatalog struct {
	prices map[string]map[string]int64
}

// NewStaticPriceCatalog создает прайс-лист; ключи сравниваются без учета регистра
func NewStaticPriceCatalog(prices map[string]map[string]int64) *StaticPriceCatalog {
	normalized := make(map[string]map[string]int64, len(prices))
	for service, byVehicle := range prices {
		inner := make(map[string]int64, len(byVehicle))
		for vehicle, price := range byVehicle {
			inner[normalizeKey(vehicle)] = price
		}
		normalized[normalizeKey(service)] = inner
	}
	return &StaticPriceCatalog{prices: normalized}
}

// Quote возвращает цену или ошибку валидации для неизвестной услуги или типа автомобиля
func (c *StaticPriceCatalog) Quote(_ context.Context, service, vehicleType string) (int64, error) {
	byVehicle, ok := c.prices[normalizeKey(service)]
	if !ok {
		return 0, domain.ValidationErrors{{Field: "service", Message: "unknown service"}}
	}
	price, ok := byVehicle[normalizeKey(vehicleType)]
	if !ok {
		return 0, domain.ValidationErrors{{Field: "vehicle_type", Message: "no price for this vehicle type"}}
	}
	return price, nil
}

// normalizeKey приводит ключ к виду конфигурации viper: нижний регистр, пробелы и дефисы -> '_'
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
