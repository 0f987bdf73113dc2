package bot

import (
	"sync"

	"carservice/internal/model"
)

// dialogStep is the free-text input a user is expected to type next.
type dialogStep string

const (
	stepNone          dialogStep = "none"
	stepProfileName   dialogStep = "profile_name"
	stepProfilePhone  dialogStep = "profile_phone"
	stepProfileBrand  dialogStep = "profile_brand"
	stepProfileModel  dialogStep = "profile_model"
	stepProfileYear   dialogStep = "profile_year"
	stepProfilePlate  dialogStep = "profile_plate"
	stepProfileVIN    dialogStep = "profile_vin"
	stepProfileKm     dialogStep = "profile_mileage"
	stepOrderCustom   dialogStep = "order_custom"
	stepOrderDesc     dialogStep = "order_description"
	stepOrderMileage  dialogStep = "order_mileage"
	stepOrderReadyMsg dialogStep = "order_ready_message"
	stepDTCLookup     dialogStep = "dtc_lookup"
	stepDTCManual     dialogStep = "dtc_manual"
	stepReview        dialogStep = "review"
)

type userState struct {
	Step dialogStep
	// Profile is the draft edited by the profile steps.
	Profile model.User
	// ClientID and OrderID carry the subject of order and diagnostics steps.
	ClientID int64
	OrderID  int64
}

type stateStore struct {
	mu sync.Mutex
	m  map[int64]*userState
}

func newStateStore() *stateStore {
	return &stateStore{m: make(map[int64]*userState)}
}

func (s *stateStore) get(userID int64) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.m[userID]
	if st == nil {
		st = &userState{Step: stepNone}
		s.m[userID] = st
	}
	return st
}

func (s *stateStore) set(userID int64, st *userState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = st
}

func (s *stateStore) reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
