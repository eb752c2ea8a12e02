package storage

import (
	"tg-eventbot/internal/logger"
	"tg-eventbot/internal/models"

	"gorm.io/gorm"
)

// GroupRepository handles database operations for membership groups and
// their members.
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new GroupRepository
func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// MigrateTable ensures the group tables exist with the right schema
func (r *GroupRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.Group{}, &models.GroupMember{})
}

// CreateGroup stores a new group record
func (r *GroupRepository) CreateGroup(group *models.Group) error {
	return r.db.Create(group).Error
}

// DeleteGroup removes a group and all of its member records
func (r *GroupRepository) DeleteGroup(groupID int64) error {
	if err := r.db.Where("group_id = ?", groupID).Delete(&models.GroupMember{}).Error; err != nil {
		return err
	}
	return r.db.Where("group_id = ?", groupID).Delete(&models.Group{}).Error
}

// AddMember stores a membership record
func (r *GroupRepository) AddMember(member *models.GroupMember) error {
	return r.db.Create(member).Error
}

// RemoveMember removes a membership record
func (r *GroupRepository) RemoveMember(groupID, userID int64) error {
	return r.db.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{}).Error
}

// GetAllGroups retrieves every group record
func (r *GroupRepository) GetAllGroups() ([]*models.Group, error) {
	var groups []*models.Group
	result := r.db.Find(&groups)
	if result.Error != nil {
		return nil, result.Error
	}
	return groups, nil
}

// GetMembers retrieves the members of one group
func (r *GroupRepository) GetMembers(groupID int64) ([]*models.GroupMember, error) {
	var members []*models.GroupMember
	result := r.db.Where("group_id = ?", groupID).Find(&members)
	if result.Error != nil {
		return nil, result.Error
	}
	return members, nil
}

// InitializeGroups loads all groups and members from the database into the
// in-memory manager at startup.
func InitializeGroups(manager *models.GroupManager) error {
	if DB == nil {
		logger.Infof("Database is not enabled, skipping group initialization")
		return nil
	}

	repo := NewGroupRepository(DB)
	groups, err := repo.GetAllGroups()
	if err != nil {
		return err
	}

	for _, group := range groups {
		manager.AddGroup(group)
		members, err := repo.GetMembers(group.GroupID)
		if err != nil {
			return err
		}
		for _, member := range members {
			manager.AddMember(member)
		}
	}

	logger.Infof("Loaded %d groups from database into cache", len(groups))
	return nil
}
