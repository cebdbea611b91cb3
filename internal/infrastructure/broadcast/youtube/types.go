package youtube

type resourceID struct {
	ID string `json:"id"`
}

type liveBroadcastInsert struct {
	Snippet        broadcastSnippet        `json:"snippet"`
	Status         broadcastStatusInsert   `json:"status"`
	ContentDetails broadcastContentDetails `json:"contentDetails"`
}

type broadcastSnippet struct {
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	ScheduledStartTime string `json:"scheduledStartTime"`
}

type broadcastStatusInsert struct {
	PrivacyStatus           string `json:"privacyStatus"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

type broadcastContentDetails struct {
	EnableAutoStart bool `json:"enableAutoStart"`
	EnableAutoStop  bool `json:"enableAutoStop"`
}

type broadcastList struct {
	Items []struct {
		ID     string `json:"id"`
		Status struct {
			LifeCycleStatus string `json:"lifeCycleStatus"`
		} `json:"status"`
	} `json:"items"`
}

type liveStreamInsert struct {
	Snippet        streamSnippet        `json:"snippet"`
	CDN            streamCDN            `json:"cdn"`
	ContentDetails streamContentDetails `json:"contentDetails"`
}

type streamSnippet struct {
	Title string `json:"title"`
}

type streamCDN struct {
	FrameRate     string `json:"frameRate"`
	IngestionType string `json:"ingestionType"`
	Resolution    string `json:"resolution"`
}

type streamContentDetails struct {
	IsReusable bool `json:"isReusable"`
}

type liveStream struct {
	ID  string `json:"id"`
	CDN struct {
		IngestionInfo struct {
			IngestionAddress string `json:"ingestionAddress"`
			StreamName       string `json:"streamName"`
		} `json:"ingestionInfo"`
	} `json:"cdn"`
}

type streamList struct {
	Items []struct {
		ID     string `json:"id"`
		Status struct {
			StreamStatus string `json:"streamStatus"`
			HealthStatus struct {
				Status string `json:"status"`
			} `json:"healthStatus"`
		} `json:"status"`
	} `json:"items"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func (e errorEnvelope) reason() string {
	for _, item := range e.Error.Errors {
		if item.Reason != "" {
			return item.Reason
		}
	}
	return ""
}
