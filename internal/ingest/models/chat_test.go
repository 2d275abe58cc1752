package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChatIDConversion(t *testing.T) {
	assert.Equal(t, int64(-1001234567890), ChannelChatID(1234567890))
	assert.Equal(t, int64(-4567), BasicGroupChatID(4567))

	id, channel := SplitChatID(-1001234567890)
	assert.Equal(t, int64(1234567890), id)
	assert.True(t, channel)

	id, channel = SplitChatID(-4567)
	assert.Equal(t, int64(4567), id)
	assert.False(t, channel)
}

func TestMessageURL(t *testing.T) {
	assert.Equal(t, "https://t.me/c/1234567890/42", MessageURL(-1001234567890, 42))
	assert.Equal(t, "https://t.me/c/4567/1", MessageURL(-4567, 1))
	assert.True(t, IsMessageURL(MessageURL(-1001234567890, 42)))
	assert.False(t, IsMessageURL("https://t.me/c/-100123/42"))
	assert.False(t, IsMessageURL("https://t.me/group/42"))
}

func TestChatInfoDisplayName(t *testing.T) {
	var nilInfo *ChatInfo
	assert.Equal(t, UnknownChatName, nilInfo.DisplayName())
	assert.Equal(t, UnknownChatName, (&ChatInfo{Title: "  "}).DisplayName())
	assert.Equal(t, "Group", (&ChatInfo{Title: "Group"}).DisplayName())

	assert.True(t, (&ChatInfo{Type: ChatTypeSupergroup}).IsGroup())
	assert.False(t, (&ChatInfo{Type: ChatTypeChannel}).IsGroup())
}

func TestRecordDerivedDocuments(t *testing.T) {
	rec := &MessageRecord{
		ID:              3,
		ChatID:          -1001,
		ChatName:        "Group",
		ChatUsername:    "group",
		ChatMemberCount: 10,
		UserID:          7,
		UserFirstName:   "Ali",
		SentAt:          time.Now(),
	}

	group := GroupFromRecord(rec)
	assert.Equal(t, int64(-1001), group.TelegramID)
	assert.Equal(t, "@group", group.Username)
	assert.Equal(t, 10, group.MemberCount)

	user := UserFromRecord(rec)
	if assert.NotNil(t, user) {
		assert.Equal(t, int64(7), user.TelegramID)
	}

	rec.UserID = 0
	assert.Nil(t, UserFromRecord(rec))
}

func TestBatchHighest(t *testing.T) {
	highest := BatchHighest([]*MessageRecord{
		{ID: 3, ChatID: -1},
		{ID: 9, ChatID: -1},
		nil,
		{ID: 5, ChatID: -2},
	})
	assert.Equal(t, int64(9), highest[-1].ID)
	assert.Equal(t, int64(5), highest[-2].ID)
}

func TestAccountValidate(t *testing.T) {
	acc := Account{Name: "acc_1", AppID: 1, AppHash: "h", Phone: "+1"}
	assert.NoError(t, acc.Validate())
	assert.True(t, acc.Complete())

	acc.Phone = ""
	assert.Error(t, acc.Validate())
	assert.False(t, acc.Complete())

	acc = Account{Name: "acc_1", AppHash: "h", Phone: "+1"}
	assert.Error(t, acc.Validate())
}
