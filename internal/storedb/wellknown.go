package storedb

import "github.com/foxcpp/exmdb/internal/ids"

// Well-known private-store folder ids (spec §6). Fixed small numbers;
// always exist after provisioning.
const (
	FolderRoot                   ids.EID = 1
	FolderDeferredAction         ids.EID = 2
	FolderSpoolerQueue           ids.EID = 3
	FolderIPMSubtree             ids.EID = 5
	FolderInbox                  ids.EID = 6
	FolderOutbox                 ids.EID = 7
	FolderSent                   ids.EID = 8
	FolderDeletedItems           ids.EID = 9
	FolderCommonViews            ids.EID = 10
	FolderSchedule               ids.EID = 11
	FolderFinder                 ids.EID = 12
	FolderViews                  ids.EID = 13
	FolderShortcuts              ids.EID = 14
	FolderDrafts                 ids.EID = 16
	FolderContacts               ids.EID = 17
	FolderCalendar               ids.EID = 18
	FolderJournal                ids.EID = 19
	FolderNotes                  ids.EID = 20
	FolderTasks                  ids.EID = 21
	FolderJunk                   ids.EID = 23
	FolderConflicts              ids.EID = 24
	FolderSyncIssues             ids.EID = 25
	FolderLocalFailures          ids.EID = 26
	FolderServerFailures         ids.EID = 27
	FolderConversationActionSettings ids.EID = 28
	FolderIMContactList          ids.EID = 29
	FolderQuickContacts          ids.EID = 30
	FolderLocalFreebusy          ids.EID = 31
)

// Public-store well-known folder ids (spec §6).
const (
	PublicFolderRoot         ids.EID = 1
	PublicFolderIPMSubtree   ids.EID = 2
	PublicFolderNonIPMSubtree ids.EID = 3
	PublicFolderEFormsRegistry ids.EID = 4
)

// privateWellKnownUnderRoot and privateWellKnownUnderSubtree list every
// private-store well-known folder id besides root, split by the parent
// Provision creates them under (root for the first handful, IPM_SUBTREE
// for the rest).
var privateWellKnownUnderRoot = []ids.EID{FolderDeferredAction, FolderSpoolerQueue, FolderIPMSubtree}

var privateWellKnownUnderSubtree = []ids.EID{
	FolderInbox, FolderOutbox, FolderSent, FolderDeletedItems,
	FolderCommonViews, FolderSchedule, FolderFinder, FolderViews, FolderShortcuts,
	FolderDrafts, FolderContacts, FolderCalendar, FolderJournal, FolderNotes, FolderTasks,
	FolderJunk, FolderConflicts, FolderSyncIssues, FolderLocalFailures, FolderServerFailures,
	FolderConversationActionSettings, FolderIMContactList, FolderQuickContacts, FolderLocalFreebusy,
}
