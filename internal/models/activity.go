package models

import "time"

// DevelopmentArea classifies an activity.
type DevelopmentArea string

const (
	AreaHealthMind     DevelopmentArea = "Health & Mind"
	AreaCreativity     DevelopmentArea = "Creativity"
	AreaLearning       DevelopmentArea = "Learning"
	AreaSocialSkills   DevelopmentArea = "Social Skills"
	AreaResponsibility DevelopmentArea = "Responsibility"
	AreaPhysical       DevelopmentArea = "Physical Activity"
)

var DevelopmentAreas = []DevelopmentArea{
	AreaHealthMind,
	AreaCreativity,
	AreaLearning,
	AreaSocialSkills,
	AreaResponsibility,
	AreaPhysical,
}

func (a DevelopmentArea) Valid() bool {
	for _, known := range DevelopmentAreas {
		if a == known {
			return true
		}
	}
	return false
}

// Activity is a single assignment of an activity to a child.
type Activity struct {
	ID               string          `json:"id" db:"id"`
	ParentID         string          `json:"parentId" db:"parent_id"`
	ChildID          string          `json:"childId" db:"child_id"`
	Title            string          `json:"title" db:"title"`
	Description      string          `json:"description" db:"description"`
	Area             DevelopmentArea `json:"area" db:"area"`
	CoinReward       int64           `json:"coinReward" db:"coin_reward"`
	EstimatedMinutes int             `json:"estimatedMinutes" db:"estimated_minutes"`
	DueDate          *time.Time      `json:"dueDate,omitempty" db:"due_date"`
	Completed        bool            `json:"completed" db:"completed"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
}

// ActivitySort names the supported listing orders.
type ActivitySort string

const (
	SortByTitle   ActivitySort = "title"
	SortByReward  ActivitySort = "coin_reward"
	SortByArea    ActivitySort = "area"
	SortByDueDate ActivitySort = "due_date"
)

// ActivityFilter narrows an activity listing.
type ActivityFilter struct {
	ChildID   string
	Area      DevelopmentArea
	Completed *bool
	Sort      ActivitySort
}
