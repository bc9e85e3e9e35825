package vcd

import "encoding/xml"

const (
	xmlns        = "http://www.vmware.com/vcloud/v1.5"
	xmlnsCompute = "http://www.vmware.com/vchs/compute/v1"

	mediaServiceConfiguration = "application/vnd.vmware.admin.edgeGatewayServiceConfiguration+xml"
	mediaExternalIPActions    = "application/xml"
	relConfigureServices      = "edgeGateway:configureServices"
	relManageExternalIPs      = "edgeGateway:manageExternalIpAddresses"
)

type reference struct {
	HREF string `xml:"href,attr,omitempty"`
	Name string `xml:"name,attr,omitempty"`
	Type string `xml:"type,attr,omitempty"`
}

type link struct {
	Rel  string `xml:"rel,attr"`
	HREF string `xml:"href,attr"`
	Type string `xml:"type,attr,omitempty"`
}

// apiError is the body of a failed request.
type apiError struct {
	XMLName        xml.Name `xml:"Error"`
	Message        string   `xml:"message,attr"`
	MajorErrorCode int      `xml:"majorErrorCode,attr"`
	MinorErrorCode string   `xml:"minorErrorCode,attr"`
}

type queryRecord struct {
	Name string `xml:"name,attr"`
	HREF string `xml:"href,attr"`
}

type queryResultRecords struct {
	XMLName      xml.Name      `xml:"QueryResultRecords"`
	Total        int           `xml:"total,attr"`
	OrgVdcs      []queryRecord `xml:"OrgVdcRecord"`
	EdgeGateways []queryRecord `xml:"EdgeGatewayRecord"`
	VApps        []queryRecord `xml:"VAppRecord"`
}

type edgeGateway struct {
	XMLName       xml.Name             `xml:"EdgeGateway"`
	Name          string               `xml:"name,attr"`
	HREF          string               `xml:"href,attr"`
	Links         []link               `xml:"Link"`
	Configuration gatewayConfiguration `xml:"Configuration"`
}

type gatewayConfiguration struct {
	Interfaces []gatewayInterface     `xml:"GatewayInterfaces>GatewayInterface"`
	Services   *serviceConfiguration `xml:"EdgeGatewayServiceConfiguration"`
}

type gatewayInterface struct {
	Name          string                `xml:"Name"`
	Network       reference             `xml:"Network"`
	InterfaceType string                `xml:"InterfaceType"`
	Subnets       []subnetParticipation `xml:"SubnetParticipation"`
}

type subnetParticipation struct {
	Gateway   string    `xml:"Gateway"`
	Netmask   string    `xml:"Netmask"`
	IPAddress string    `xml:"IpAddress"`
	IPRanges  []ipRange `xml:"IpRanges>IpRange"`
}

type ipRange struct {
	Start string `xml:"StartAddress"`
	End   string `xml:"EndAddress"`
}

// serviceConfiguration is posted back as a whole. Services other than NAT
// (firewall, DHCP, load balancer...) are carried through untouched.
type serviceConfiguration struct {
	XMLName xml.Name    `xml:"EdgeGatewayServiceConfiguration"`
	Nat     *natService `xml:"NatService,omitempty"`
	Other   []rawXML    `xml:",any"`
}

type rawXML struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

type natService struct {
	IsEnabled bool      `xml:"IsEnabled"`
	Rules     []natRule `xml:"NatRule"`
}

type natRule struct {
	Description string          `xml:"Description,omitempty"`
	RuleType    string          `xml:"RuleType"`
	IsEnabled   bool            `xml:"IsEnabled"`
	ID          string          `xml:"Id,omitempty"`
	Gateway     *gatewayNatRule `xml:"GatewayNatRule"`
}

type gatewayNatRule struct {
	Interface      *reference `xml:"Interface,omitempty"`
	OriginalIP     string     `xml:"OriginalIp"`
	OriginalPort   string     `xml:"OriginalPort,omitempty"`
	TranslatedIP   string     `xml:"TranslatedIp"`
	TranslatedPort string     `xml:"TranslatedPort,omitempty"`
	Protocol       string     `xml:"Protocol,omitempty"`
}

type taskRecord struct {
	XMLName   xml.Name  `xml:"Task"`
	ID        string    `xml:"id,attr"`
	HREF      string    `xml:"href,attr"`
	Status    string    `xml:"status,attr"`
	Operation string    `xml:"operation,attr"`
	Error     *apiError `xml:"Error"`
}

type vApp struct {
	XMLName xml.Name `xml:"VApp"`
	Name    string   `xml:"name,attr"`
	VMs     []vm     `xml:"Children>Vm"`
}

type vm struct {
	Name        string              `xml:"name,attr"`
	Connections []networkConnection `xml:"NetworkConnectionSection>NetworkConnection"`
}

type networkConnection struct {
	Network     string `xml:"network,attr"`
	Index       int    `xml:"NetworkConnectionIndex"`
	IPAddress   string `xml:"IpAddress"`
	IsConnected bool   `xml:"IsConnected"`
}

// externalIPActions requests on-demand public addresses.
type externalIPActions struct {
	XMLName    xml.Name              `xml:"ExternalIpAddressActionList"`
	Xmlns      string                `xml:"xmlns,attr"`
	Allocation *externalIPAllocation `xml:"Allocation,omitempty"`
	Release    *externalIPRelease    `xml:"Deallocation,omitempty"`
}

type externalIPAllocation struct {
	Count int `xml:"NumberOfExternalIpAddressesToAllocate"`
}

type externalIPRelease struct {
	Address string `xml:"ExternalIpAddress"`
}
