package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/balkashynov/crewclock/internal/models"
)

// ErrNoMembership is returned when this device has not joined a group yet
var ErrNoMembership = errors.New("not a member of any group; run 'crewclock group join' first")

// JoinGroup records (or updates) the group this device uploads to
func (s *Store) JoinGroup(groupID, groupName, userName string) (*models.Membership, error) {
	groupID = strings.TrimSpace(groupID)
	userName = strings.TrimSpace(userName)
	if groupID == "" || userName == "" {
		return nil, fmt.Errorf("group id and user name are required")
	}

	var membership models.Membership
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Only one active membership per device
		if err := tx.Where("group_id <> ?", groupID).Delete(&models.Membership{}).Error; err != nil {
			return err
		}

		err := tx.Where("group_id = ?", groupID).First(&membership).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		membership.GroupID = groupID
		membership.UserName = userName
		if groupName != "" {
			membership.GroupName = groupName
		}
		if membership.JoinedAt.IsZero() {
			membership.JoinedAt = time.Now()
		}
		return tx.Save(&membership).Error
	})
	if err != nil {
		return nil, err
	}

	return &membership, nil
}

// CurrentMembership returns the group this device uploads to
func (s *Store) CurrentMembership() (*models.Membership, error) {
	var membership models.Membership

	err := s.db.Order("joined_at DESC").First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoMembership
	}
	if err != nil {
		return nil, err
	}

	return &membership, nil
}

// LeaveGroup forgets the local membership. Stored sessions are kept.
func (s *Store) LeaveGroup() error {
	return s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Membership{}).Error
}
