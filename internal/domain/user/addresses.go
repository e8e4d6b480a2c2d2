package user

import (
	"context"
	"strings"
)

// AddressPatch overwrites non-empty fields; IsDefault is applied when set.
type AddressPatch struct {
	Label      string `json:"label"`
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	IsDefault  *bool  `json:"isDefault"`
}

func (p AddressPatch) apply(a *Address) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&a.Label, p.Label)
	set(&a.FullName, p.FullName)
	set(&a.Email, p.Email)
	set(&a.Phone, p.Phone)
	set(&a.Street, p.Street)
	set(&a.City, p.City)
	set(&a.PostalCode, p.PostalCode)
	set(&a.Country, p.Country)
	if p.IsDefault != nil {
		a.IsDefault = *p.IsDefault
	}
}

// onlyDefault clears the default flag on every address but keep.
func onlyDefault(addrs []Address, keep int) {
	if !addrs[keep].IsDefault {
		return
	}
	for i := range addrs {
		if i != keep {
			addrs[i].IsDefault = false
		}
	}
}

func (s *Service) Addresses(ctx context.Context, userID string) ([]Address, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Addresses, nil
}

func (s *Service) AddAddress(ctx context.Context, userID string, p AddressPatch) ([]Address, error) {
	return s.editAddresses(ctx, userID, func(addrs []Address) ([]Address, error) {
		a := Address{Label: defaultAddressLabel}
		p.apply(&a)
		addrs = append(addrs, a)
		onlyDefault(addrs, len(addrs)-1)
		return addrs, nil
	})
}

func (s *Service) UpdateAddress(ctx context.Context, userID string, index int, p AddressPatch) ([]Address, error) {
	return s.editAddresses(ctx, userID, func(addrs []Address) ([]Address, error) {
		if index < 0 || index >= len(addrs) {
			return nil, ErrInvalidAddressIndex
		}
		p.apply(&addrs[index])
		onlyDefault(addrs, index)
		return addrs, nil
	})
}

func (s *Service) DeleteAddress(ctx context.Context, userID string, index int) ([]Address, error) {
	return s.editAddresses(ctx, userID, func(addrs []Address) ([]Address, error) {
		if index < 0 || index >= len(addrs) {
			return nil, ErrInvalidAddressIndex
		}
		return append(addrs[:index:index], addrs[index+1:]...), nil
	})
}

func (s *Service) editAddresses(ctx context.Context, userID string, fn func([]Address) ([]Address, error)) ([]Address, error) {
	u, err := s.repo.Update(ctx, userID, func(u *User) error {
		addrs, err := fn(u.Addresses)
		if err != nil {
			return err
		}
		u.Addresses = addrs
		u.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u.Addresses, nil
}
